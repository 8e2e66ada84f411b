package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/types"
)

const (
	// TypeTraderExchange is emitted after a wrapper or unwrapper converts
	// tokens for the ledger.
	TypeTraderExchange = "trader.exchange"

	DirectionWrap   = "wrap"
	DirectionUnwrap = "unwrap"
)

type TraderExchange struct {
	Trader       common.Address
	Direction    string
	Originator   common.Address
	InputToken   common.Address
	OutputToken  common.Address
	InputAmount  *big.Int
	OutputAmount *big.Int
}

func (TraderExchange) EventType() string { return TypeTraderExchange }

func (e TraderExchange) Event() *types.Event {
	attrs := map[string]string{
		"trader":       formatAddress(e.Trader),
		"direction":    e.Direction,
		"inputToken":   formatAddress(e.InputToken),
		"outputToken":  formatAddress(e.OutputToken),
		"inputAmount":  formatAmount(e.InputAmount),
		"outputAmount": formatAmount(e.OutputAmount),
	}
	if originator := formatAddress(e.Originator); originator != "" {
		attrs["originator"] = originator
	}
	return &types.Event{Type: TypeTraderExchange, Attributes: attrs}
}
