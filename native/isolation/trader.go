package isolation

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	nativecommon "isovault/native/common"
	"isovault/observability/metrics"
)

// trader carries what both conversion directions share. Traders hold only
// fixed references; every state change happens in the ledger or a vault.
type trader struct {
	address common.Address
	factory *Factory
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	emitter events.Emitter
	metrics *metrics.IsolationMetrics
}

func newTrader(address common.Address, factory *Factory) trader {
	return trader{address: address, factory: factory, logger: slog.Default(), emitter: events.NoopEmitter{}}
}

func (t *trader) SetPauses(p nativecommon.PauseView) { t.pauses = p }

func (t *trader) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	t.logger = logger.With("component", "trader", "trader", t.address.Hex())
}

func (t *trader) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	t.emitter = emitter
}

func (t *trader) SetMetrics(m *metrics.IsolationMetrics) { t.metrics = m }

// Address returns the trader's address in the bank and the ledger.
func (t *trader) Address() common.Address { return t.address }

// Token returns the wrapped token the trader serves.
func (t *trader) Token() common.Address { return t.factory.Address() }

func (t *trader) ActionsLength() int { return ConversionActionsLength }

func (t *trader) requireLedger(caller common.Address) error {
	if caller != t.factory.Ledger().Address() {
		return fmt.Errorf("%w: %s", ErrOnlyLedger, caller.Hex())
	}
	return nil
}

// requireVaultCall validates a priming call made for account owner vault.
func (t *trader) requireVaultCall(owner common.Address, data []byte) (CallData, error) {
	payload, err := DecodeCallData(data)
	if err != nil {
		return CallData{}, err
	}
	if !t.factory.IsVault(owner) {
		return CallData{}, fmt.Errorf("%w: %s", ErrInvalidTradeOriginator, owner.Hex())
	}
	if payload.Vault != owner {
		return CallData{}, fmt.Errorf("%w: call names vault %s, account owner is %s", ErrInvalidAccount, payload.Vault.Hex(), owner.Hex())
	}
	if payload.Amount.Sign() <= 0 {
		return CallData{}, fmt.Errorf("%w: %s", ErrInvalidInputAmount, payload.Amount)
	}
	return payload, nil
}

func (t *trader) record(direction string, evt events.TraderExchange, err error) {
	t.metrics.ObserveExchange(direction, evt.InputAmount, err)
	if err != nil {
		t.logger.Warn("exchange rejected", "direction", direction, "input", evt.InputAmount, "error", err)
		return
	}
	if t.emitter != nil {
		t.emitter.Emit(evt)
	}
}

func checkMinOutput(out *big.Int, orderData []byte) error {
	order, err := DecodeOrderData(orderData)
	if err != nil {
		return err
	}
	if out.Cmp(order.MinOutputAmount) < 0 {
		return fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutputAmount, out, order.MinOutputAmount)
	}
	return nil
}
