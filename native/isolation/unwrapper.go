package isolation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	nativecommon "isovault/native/common"
	"isovault/native/margin"
)

// UnwrapConverter turns the underlying token held by a trader into an output
// token. Quotes must equal what Unwrap would return for the same state.
type UnwrapConverter interface {
	Unwrap(trader, outputToken common.Address, underlyingAmount *big.Int) (*big.Int, error)
	QuoteUnwrap(outputToken common.Address, underlyingAmount *big.Int) (*big.Int, error)
}

// UnwrapperTrader converts the wrapped token into the reference asset for the
// ledger, typically while a vault is being liquidated.
type UnwrapperTrader struct {
	trader
	outputToken common.Address
	converter   UnwrapConverter
}

func NewUnwrapperTrader(address common.Address, factory *Factory, outputToken common.Address, converter UnwrapConverter) *UnwrapperTrader {
	return &UnwrapperTrader{trader: newTrader(address, factory), outputToken: outputToken, converter: converter}
}

// OutputToken returns the reference asset the trader pays out.
func (t *UnwrapperTrader) OutputToken() common.Address { return t.outputToken }

// OutputMarketID returns the ledger market of the reference asset.
func (t *UnwrapperTrader) OutputMarketID() (uint64, error) {
	return t.factory.Ledger().GetMarketIDByToken(t.outputToken)
}

// CallFunction primes an unwrap: it checks the vault can cover the amount and
// queues the wrapped token's move from the ledger to this trader.
func (t *UnwrapperTrader) CallFunction(caller, _ common.Address, account margin.AccountInfo, data []byte) error {
	if err := t.requireLedger(caller); err != nil {
		return err
	}
	payload, err := t.requireVaultCall(account.Owner, data)
	if err != nil {
		return err
	}
	router, _ := t.factory.Router(account.Owner)
	balance, err := router.UnderlyingBalanceOf()
	if err != nil {
		return err
	}
	if balance.Cmp(payload.Amount) < 0 {
		return fmt.Errorf("%w: vault %s holds %s, unwrapping %s", ErrInsufficientUnderlying, account.Owner.Hex(), balance, payload.Amount)
	}
	return t.factory.EnqueueTransferFromLedger(t.address, account.Owner, payload.Amount)
}

// Exchange converts inputAmount of the underlying token, already released to
// the trader, into outputToken. The ledger collects the output afterwards.
func (t *UnwrapperTrader) Exchange(sender, tradeOriginator, _, outputToken, inputToken common.Address, inputAmount *big.Int, orderData []byte) (*big.Int, error) {
	evt := events.TraderExchange{
		Trader:      t.address,
		Direction:   events.DirectionUnwrap,
		Originator:  tradeOriginator,
		InputToken:  inputToken,
		OutputToken: outputToken,
		InputAmount: inputAmount,
	}
	out, err := t.exchange(sender, outputToken, inputToken, inputAmount, orderData)
	evt.OutputAmount = out
	t.record(events.DirectionUnwrap, evt, err)
	return out, err
}

func (t *UnwrapperTrader) exchange(sender, outputToken, inputToken common.Address, inputAmount *big.Int, orderData []byte) (*big.Int, error) {
	if err := t.requireLedger(sender); err != nil {
		return nil, err
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
	out, err := t.converter.Unwrap(t.address, outputToken, inputAmount)
	if err != nil {
		return nil, err
	}
	if err := checkMinOutput(out, orderData); err != nil {
		return nil, err
	}
	return out, nil
}

// GetExchangeCost quotes the output for desiredInputAmount of the wrapped
// token.
func (t *UnwrapperTrader) GetExchangeCost(inputToken, outputToken common.Address, desiredInputAmount *big.Int, _ []byte) (*big.Int, error) {
	if err := t.validate(inputToken, outputToken); err != nil {
		return nil, err
	}
	if desiredInputAmount == nil || desiredInputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDesiredInputAmount, desiredInputAmount)
	}
	return t.converter.QuoteUnwrap(outputToken, desiredInputAmount)
}

func (t *UnwrapperTrader) validate(inputToken, outputToken common.Address) error {
	if inputToken != t.factory.Address() {
		return fmt.Errorf("%w: %s", ErrInvalidInputToken, inputToken.Hex())
	}
	if outputToken != t.outputToken {
		return fmt.Errorf("%w: %s", ErrInvalidOutputToken, outputToken.Hex())
	}
	return nil
}

// CreateActionsForUnwrappingForLiquidation builds the call on the liquid
// vault account and the sell on the solid account that receives the output.
func (t *UnwrapperTrader) CreateActionsForUnwrappingForLiquidation(solidAccountID, liquidAccountID int, solidAccountOwner, liquidAccountOwner common.Address, outputMarketID, inputMarketID uint64, minOutputAmount, inputAmount *big.Int) ([]margin.ActionArgs, error) {
	if !t.factory.IsVault(liquidAccountOwner) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTradeOriginator, liquidAccountOwner.Hex())
	}
	if err := t.requireMarkets(inputMarketID, outputMarketID); err != nil {
		return nil, err
	}
	return conversionActions(t.address, liquidAccountID, solidAccountID, liquidAccountOwner, inputMarketID, outputMarketID, minOutputAmount, inputAmount)
}

func (t *UnwrapperTrader) requireMarkets(inputMarketID, outputMarketID uint64) error {
	ledger := t.factory.Ledger()
	input, err := ledger.GetMarketTokenAddress(inputMarketID)
	if err != nil {
		return err
	}
	output, err := ledger.GetMarketTokenAddress(outputMarketID)
	if err != nil {
		return err
	}
	return t.validate(input, output)
}
