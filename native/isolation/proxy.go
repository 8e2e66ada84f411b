package isolation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProxyRouter is the per-owner storage shell. It holds no behavior of its own:
// every call other than the management surface is forwarded to the factory's
// current Implementation together with this router's Storage.
type ProxyRouter struct {
	address     common.Address
	factory     *Factory
	owner       common.Address
	initialized bool
	storage     Storage
}

func newProxyRouter(address common.Address, factory *Factory, storage Storage) *ProxyRouter {
	return &ProxyRouter{address: address, factory: factory, storage: storage}
}

// Initialize binds owner to the router. Only the factory may call it, and only
// once.
func (r *ProxyRouter) Initialize(caller, owner common.Address) error {
	if r.initialized {
		return fmt.Errorf("%w: router %s", ErrAlreadyInitialized, r.address.Hex())
	}
	if caller != r.factory.Address() {
		return unauthorized(caller, "vault factory")
	}
	if expected := r.factory.GetAccountByVault(r.address); owner != expected {
		return fmt.Errorf("%w: %s is not bound to router %s", ErrInvalidAccount, owner.Hex(), r.address.Hex())
	}
	r.owner = owner
	r.initialized = true
	return nil
}

func (r *ProxyRouter) Address() common.Address     { return r.address }
func (r *ProxyRouter) VaultFactory() common.Address { return r.factory.Address() }
func (r *ProxyRouter) Owner() common.Address        { return r.owner }
func (r *ProxyRouter) IsInitialized() bool          { return r.initialized }

// Implementation returns the logic the router currently forwards to.
func (r *ProxyRouter) Implementation() Implementation {
	return r.factory.UserVaultImplementation()
}

// Factory returns the factory that deployed the router.
func (r *ProxyRouter) Factory() *Factory { return r.factory }

// Forward hands the current implementation and this router's storage to fn.
// It performs no access checks and takes no guard, so it suits reads.
func (r *ProxyRouter) Forward(fn func(impl Implementation, st Storage) error) error {
	if !r.initialized {
		return fmt.Errorf("%w: router %s", ErrNotInitialized, r.address.Hex())
	}
	impl := r.Implementation()
	if impl == nil {
		return ErrNilImplementation
	}
	return fn(impl, r.storage)
}

// Call forwards a mutating operation. The router's reentrancy guard is held for
// the whole call and every journaled system is rolled back if fn fails.
func (r *ProxyRouter) Call(op string, fn func(impl Implementation, st Storage) error) error {
	err := r.Forward(func(impl Implementation, st Storage) error {
		release, err := st.Guard().Enter()
		if err != nil {
			return fmt.Errorf("%w: %s on vault %s", err, op, r.address.Hex())
		}
		defer release()
		return r.factory.journal.Atomic(func() error { return fn(impl, st) })
	})
	r.factory.metrics.ObserveVaultOperation(op, err)
	return err
}

// RequireOwner rejects callers other than the vault owner.
func (r *ProxyRouter) RequireOwner(caller common.Address) error {
	if caller != r.owner {
		return unauthorized(caller, "vault owner")
	}
	return nil
}

// RequireOwnerOrFactory rejects callers other than the owner or the factory.
func (r *ProxyRouter) RequireOwnerOrFactory(caller common.Address) error {
	if caller != r.owner && caller != r.factory.Address() {
		return unauthorized(caller, "vault owner or factory")
	}
	return nil
}

// ExecuteDepositIntoVault pulls amount of the underlying token from `from` into
// the vault. Only the factory may call it.
func (r *ProxyRouter) ExecuteDepositIntoVault(caller, from common.Address, amount *big.Int) error {
	if caller != r.factory.Address() {
		return unauthorized(caller, "vault factory")
	}
	return r.Forward(func(impl Implementation, st Storage) error {
		return impl.ExecuteDepositIntoVault(r, st, from, amount)
	})
}

// ExecuteWithdrawalFromVault pushes amount of the underlying token to
// recipient. Only the factory may call it.
func (r *ProxyRouter) ExecuteWithdrawalFromVault(caller, recipient common.Address, amount *big.Int) error {
	if caller != r.factory.Address() {
		return unauthorized(caller, "vault factory")
	}
	return r.Forward(func(impl Implementation, st Storage) error {
		return impl.ExecuteWithdrawalFromVault(r, st, recipient, amount)
	})
}

// UnderlyingBalanceOf reports the underlying amount the vault accounts for.
func (r *ProxyRouter) UnderlyingBalanceOf() (*big.Int, error) {
	var out *big.Int
	err := r.Forward(func(impl Implementation, st Storage) error {
		out = impl.UnderlyingBalanceOf(r, st)
		return nil
	})
	return out, err
}
