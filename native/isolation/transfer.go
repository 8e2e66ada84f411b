package isolation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/margin"
)

// QueuedTransfer is the single wrapped token movement the factory expects
// next. The wrapped token never moves unless it matches the queue.
type QueuedTransfer struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
	Vault  common.Address
}

func (q *QueuedTransfer) clone() *QueuedTransfer {
	if q == nil {
		return nil
	}
	cp := *q
	cp.Amount = new(big.Int).Set(q.Amount)
	return &cp
}

func (q *QueuedTransfer) matches(from, to common.Address, amount *big.Int) bool {
	return q != nil && q.From == from && q.To == to && q.Amount.Cmp(amount) == 0
}

// QueuedTransfer returns the pending transfer, if any.
func (f *Factory) QueuedTransfer() (QueuedTransfer, bool) {
	if f.queued == nil {
		return QueuedTransfer{}, false
	}
	return *f.queued.clone(), true
}

func (f *Factory) enqueue(from, to common.Address, amount *big.Int, vault common.Address) {
	f.queued = &QueuedTransfer{From: from, To: to, Amount: new(big.Int).Set(amount), Vault: vault}
}

// operateQueued queues a transfer and runs the ledger batch meant to settle
// it. The queue never outlives the batch, whether it succeeds or not.
func (f *Factory) operateQueued(from, to, vault common.Address, amount *big.Int, accounts []margin.AccountInfo, actions []margin.ActionArgs) error {
	f.enqueue(from, to, amount, vault)
	defer func() { f.queued = nil }()
	return f.ledger.Operate(f.address, accounts, actions)
}

// requireSettled runs at the end of every ledger batch.
func (f *Factory) requireSettled() error {
	if q := f.queued; q != nil {
		return fmt.Errorf("%w: %s of vault %s from %s to %s", ErrUnsettledTransfer, q.Amount, q.Vault.Hex(), q.From.Hex(), q.To.Hex())
	}
	return nil
}

// EnqueueTransferIntoLedger lets a trusted converter announce that it will
// move amount of the wrapped token into the ledger on behalf of vault. It is
// only accepted while a ledger batch is executing.
func (f *Factory) EnqueueTransferIntoLedger(caller, vault common.Address, amount *big.Int) error {
	if err := f.requireConverter(caller, vault, amount); err != nil {
		return err
	}
	f.enqueue(caller, f.ledger.Address(), amount, vault)
	return nil
}

// EnqueueTransferFromLedger lets a trusted converter announce that the ledger
// will move amount of vault's wrapped token to the converter within the
// executing batch.
func (f *Factory) EnqueueTransferFromLedger(caller, vault common.Address, amount *big.Int) error {
	if err := f.requireConverter(caller, vault, amount); err != nil {
		return err
	}
	f.enqueue(f.ledger.Address(), caller, amount, vault)
	return nil
}

func (f *Factory) requireConverter(caller, vault common.Address, amount *big.Int) error {
	if !f.converters[caller] {
		return fmt.Errorf("%w: %s", ErrUntrustedConverter, caller.Hex())
	}
	router, ok := f.vaults[vault]
	if !ok || !router.IsInitialized() {
		return fmt.Errorf("%w: %s", ErrUnknownVault, vault.Hex())
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	if !f.ledger.Operating() {
		return fmt.Errorf("%w: no ledger batch is executing", ErrInvalidQueuedTransfer)
	}
	return nil
}

// wrappedTokenHook ties wrapped token movements to the underlying token. When
// the wrapped token enters the ledger the vault receives the underlying token
// and the wrapped amount is minted just in time; when it leaves, the vault
// releases the underlying token and the wrapped amount is burned.
type wrappedTokenHook struct{ f *Factory }

func (h wrappedTokenHook) BeforeTransfer(from, to common.Address, amount *big.Int) error {
	f := h.f
	q := f.queued
	if !q.matches(from, to, amount) {
		return fmt.Errorf("%w: %s to %s for %s", ErrInvalidQueuedTransfer, from.Hex(), to.Hex(), amount)
	}
	f.queued = nil
	router, ok := f.vaults[q.Vault]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVault, q.Vault.Hex())
	}
	ledger := f.ledger.Address()
	switch {
	case to == ledger:
		source := router.Owner()
		if from != q.Vault {
			source = from
		}
		if f.skip[q.Vault] {
			delete(f.skip, q.Vault)
		} else if err := router.ExecuteDepositIntoVault(f.address, source, amount); err != nil {
			return err
		}
		if err := f.bank.Mint(f.address, from, amount); err != nil {
			return err
		}
		f.wrapped[q.Vault] = new(big.Int).Add(f.WrappedBalanceOf(q.Vault), amount)
	case from == ledger:
		recipient := router.Owner()
		if to != q.Vault {
			recipient = to
		}
		if err := router.ExecuteWithdrawalFromVault(f.address, recipient, amount); err != nil {
			return err
		}
		next := new(big.Int).Sub(f.WrappedBalanceOf(q.Vault), amount)
		if next.Sign() < 0 {
			return fmt.Errorf("%w: vault %s wraps %s, releasing %s", ErrInsufficientUnderlying, q.Vault.Hex(), f.WrappedBalanceOf(q.Vault), amount)
		}
		if next.Sign() == 0 {
			delete(f.wrapped, q.Vault)
		} else {
			f.wrapped[q.Vault] = next
		}
	default:
		return fmt.Errorf("%w: %s to %s bypasses the ledger", ErrInvalidQueuedTransfer, from.Hex(), to.Hex())
	}
	return nil
}

func (h wrappedTokenHook) AfterTransfer(from, to common.Address, amount *big.Int) error {
	f := h.f
	if from == f.ledger.Address() {
		if err := f.bank.Burn(f.address, to, amount); err != nil {
			return err
		}
	}
	f.metrics.SetWrappedSupply(f.address.Hex(), f.TotalWrapped())
	return nil
}
