package margin

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountInfo identifies a ledger account: an owner plus a sub-account number.
type AccountInfo struct {
	Owner  common.Address
	Number uint64
}

func (a AccountInfo) String() string {
	return fmt.Sprintf("%s/%d", a.Owner.Hex(), a.Number)
}

// ActionType enumerates the steps Operate can execute.
type ActionType uint8

const (
	ActionDeposit ActionType = iota
	ActionWithdraw
	ActionTransfer
	ActionSell
	ActionCall
)

func (t ActionType) String() string {
	switch t {
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	case ActionTransfer:
		return "transfer"
	case ActionSell:
		return "sell"
	case ActionCall:
		return "call"
	default:
		return fmt.Sprintf("action(%d)", uint8(t))
	}
}

// AmountReference selects whether an AssetAmount is relative to the current
// balance or the balance the account should end with.
type AmountReference uint8

const (
	AmountDelta AmountReference = iota
	AmountTarget
)

// AssetAmount is a signed amount. Sign is true for positive values.
type AssetAmount struct {
	Sign  bool
	Ref   AmountReference
	Value *big.Int
}

// DeltaAmount builds a delta amount from a signed integer.
func DeltaAmount(v *big.Int) AssetAmount {
	if v == nil {
		return AssetAmount{Sign: true, Ref: AmountDelta, Value: big.NewInt(0)}
	}
	return AssetAmount{Sign: v.Sign() >= 0, Ref: AmountDelta, Value: new(big.Int).Abs(v)}
}

// TargetAmount builds an amount that sets the balance to v.
func TargetAmount(v *big.Int) AssetAmount {
	amt := DeltaAmount(v)
	amt.Ref = AmountTarget
	return amt
}

func (a AssetAmount) signed() *big.Int {
	if a.Value == nil {
		return big.NewInt(0)
	}
	v := new(big.Int).Set(a.Value)
	if !a.Sign {
		v.Neg(v)
	}
	return v
}

// ActionArgs is a single step in an Operate batch. AccountID and
// OtherAccountID index into the accounts slice passed to Operate.
type ActionArgs struct {
	ActionType        ActionType
	AccountID         int
	Amount            AssetAmount
	PrimaryMarketID   uint64
	SecondaryMarketID uint64
	OtherAddress      common.Address
	OtherAccountID    int
	Data              []byte
}

// PriceOracle returns the price of one base unit of token.
type PriceOracle interface {
	GetPrice(token common.Address) (*big.Int, error)
}

// ExchangeWrapper converts tokens on behalf of the ledger during a sell.
type ExchangeWrapper interface {
	Exchange(sender, tradeOriginator, receiver, outputToken, inputToken common.Address, inputAmount *big.Int, orderData []byte) (*big.Int, error)
	GetExchangeCost(inputToken, outputToken common.Address, desiredInputAmount *big.Int, orderData []byte) (*big.Int, error)
}

// Callee receives arbitrary data during a call action. caller is always the
// ledger; sender is the address that invoked Operate.
type Callee interface {
	CallFunction(caller, sender common.Address, account AccountInfo, data []byte) error
}

// Market is a token listed on the ledger.
type Market struct {
	ID         uint64
	Token      common.Address
	Oracle     PriceOracle
	Borrowable bool
}
