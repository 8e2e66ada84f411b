package isolation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	nativecommon "isovault/native/common"
	"isovault/native/margin"
)

// WrapConverter turns an input token held by a trader into the underlying
// token. Quotes must equal what Wrap would return for the same state.
type WrapConverter interface {
	Wrap(trader, inputToken common.Address, inputAmount *big.Int) (*big.Int, error)
	QuoteWrap(inputToken common.Address, inputAmount *big.Int) (*big.Int, error)
}

// WrapperTrader converts the reference asset into the wrapped token for a
// vault's ledger account.
type WrapperTrader struct {
	trader
	inputToken common.Address
	converter  WrapConverter
}

func NewWrapperTrader(address common.Address, factory *Factory, inputToken common.Address, converter WrapConverter) *WrapperTrader {
	return &WrapperTrader{trader: newTrader(address, factory), inputToken: inputToken, converter: converter}
}

// InputToken returns the reference asset the trader accepts.
func (t *WrapperTrader) InputToken() common.Address { return t.inputToken }

// OutputMarketID returns the ledger market of the wrapped token.
func (t *WrapperTrader) OutputMarketID() (uint64, error) {
	return t.factory.MarketID()
}

// CallFunction primes a wrap. It only validates that the account belongs to a
// vault; no funds move until the sell.
func (t *WrapperTrader) CallFunction(caller, _ common.Address, account margin.AccountInfo, data []byte) error {
	if err := t.requireLedger(caller); err != nil {
		return err
	}
	_, err := t.requireVaultCall(account.Owner, data)
	return err
}

// Exchange converts inputAmount of the reference asset into the underlying
// token and queues the wrapped amount into the ledger for tradeOriginator.
func (t *WrapperTrader) Exchange(sender, tradeOriginator, _, outputToken, inputToken common.Address, inputAmount *big.Int, orderData []byte) (*big.Int, error) {
	evt := events.TraderExchange{
		Trader:      t.address,
		Direction:   events.DirectionWrap,
		Originator:  tradeOriginator,
		InputToken:  inputToken,
		OutputToken: outputToken,
		InputAmount: inputAmount,
	}
	out, err := t.exchange(sender, tradeOriginator, outputToken, inputToken, inputAmount, orderData)
	evt.OutputAmount = out
	t.record(events.DirectionWrap, evt, err)
	return out, err
}

func (t *WrapperTrader) exchange(sender, tradeOriginator, outputToken, inputToken common.Address, inputAmount *big.Int, orderData []byte) (*big.Int, error) {
	if err := t.requireLedger(sender); err != nil {
		return nil, err
	}
	if !t.factory.IsVault(tradeOriginator) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTradeOriginator, tradeOriginator.Hex())
	}
	if err := t.validate(inputToken, outputToken); err != nil {
		return nil, err
	}
	if inputAmount == nil || inputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInputAmount, inputAmount)
	}
	if err := nativecommon.Guard(t.pauses, nativecommon.ModuleTraders); err != nil {
		return nil, err
	}
	out, err := t.converter.Wrap(t.address, inputToken, inputAmount)
	if err != nil {
		return nil, err
	}
	if err := checkMinOutput(out, orderData); err != nil {
		return nil, err
	}
	if err := t.factory.EnqueueTransferIntoLedger(t.address, tradeOriginator, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetExchangeCost quotes the wrapped amount minted for desiredInputAmount of
// the reference asset.
func (t *WrapperTrader) GetExchangeCost(inputToken, outputToken common.Address, desiredInputAmount *big.Int, _ []byte) (*big.Int, error) {
	if err := t.validate(inputToken, outputToken); err != nil {
		return nil, err
	}
	if desiredInputAmount == nil || desiredInputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDesiredInputAmount, desiredInputAmount)
	}
	return t.converter.QuoteWrap(inputToken, desiredInputAmount)
}

func (t *WrapperTrader) validate(inputToken, outputToken common.Address) error {
	if inputToken != t.inputToken {
		return fmt.Errorf("%w: %s", ErrInvalidInputToken, inputToken.Hex())
	}
	if outputToken != t.factory.Address() {
		return fmt.Errorf("%w: %s", ErrInvalidOutputToken, outputToken.Hex())
	}
	return nil
}

// CreateActionsForWrapping builds the call and sell that wrap inputAmount of
// the reference asset held by the vault account solidAccountID.
func (t *WrapperTrader) CreateActionsForWrapping(solidAccountID, liquidAccountID int, solidAccountOwner, liquidAccountOwner common.Address, outputMarketID, inputMarketID uint64, minOutputAmount, inputAmount *big.Int) ([]margin.ActionArgs, error) {
	if !t.factory.IsVault(solidAccountOwner) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTradeOriginator, solidAccountOwner.Hex())
	}
	ledger := t.factory.Ledger()
	input, err := ledger.GetMarketTokenAddress(inputMarketID)
	if err != nil {
		return nil, err
	}
	output, err := ledger.GetMarketTokenAddress(outputMarketID)
	if err != nil {
		return nil, err
	}
	if err := t.validate(input, output); err != nil {
		return nil, err
	}
	return conversionActions(t.address, solidAccountID, solidAccountID, solidAccountOwner, inputMarketID, outputMarketID, minOutputAmount, inputAmount)
}
