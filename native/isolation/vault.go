package isolation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "isovault/native/common"
)

// Storage is the per-router state an Implementation operates on.
type Storage interface {
	Guard() *nativecommon.ReentrancyGuard
}

// BaseStorage carries the reentrancy flag every vault needs. Implementations
// embed it in their own storage types.
type BaseStorage struct {
	guard nativecommon.ReentrancyGuard
}

func (s *BaseStorage) Guard() *nativecommon.ReentrancyGuard { return &s.guard }

// Implementation is the shared vault logic. It never holds owner state; the
// router passes itself and its storage into every call.
type Implementation interface {
	Name() string
	NewStorage() Storage
	ExecuteDepositIntoVault(router *ProxyRouter, st Storage, from common.Address, amount *big.Int) error
	ExecuteWithdrawalFromVault(router *ProxyRouter, st Storage, recipient common.Address, amount *big.Int) error
	UnderlyingBalanceOf(router *ProxyRouter, st Storage) *big.Int
}

// TokenVault is the plain implementation: the vault simply custodies the
// underlying token.
type TokenVault struct{}

func (TokenVault) Name() string        { return "TokenVaultV1" }
func (TokenVault) NewStorage() Storage { return &BaseStorage{} }

func (TokenVault) ExecuteDepositIntoVault(router *ProxyRouter, _ Storage, from common.Address, amount *big.Int) error {
	f := router.Factory()
	return f.Bank().Transfer(f.UnderlyingToken(), from, router.Address(), amount)
}

func (TokenVault) ExecuteWithdrawalFromVault(router *ProxyRouter, _ Storage, recipient common.Address, amount *big.Int) error {
	f := router.Factory()
	return f.Bank().Transfer(f.UnderlyingToken(), router.Address(), recipient, amount)
}

func (TokenVault) UnderlyingBalanceOf(router *ProxyRouter, _ Storage) *big.Int {
	f := router.Factory()
	return f.Bank().BalanceOf(f.UnderlyingToken(), router.Address())
}

// Vault is the owner-facing handle shared by every implementation.
type Vault struct {
	router *ProxyRouter
}

// NewVault wraps router.
func NewVault(router *ProxyRouter) *Vault { return &Vault{router: router} }

func (v *Vault) Router() *ProxyRouter     { return v.router }
func (v *Vault) Address() common.Address { return v.router.Address() }
func (v *Vault) Owner() common.Address   { return v.router.Owner() }

// DepositIntoVaultForLedger pulls amount of the underlying token from the
// owner and credits the same amount of the wrapped token to the vault's
// ledger account toAccountNumber.
func (v *Vault) DepositIntoVaultForLedger(caller common.Address, toAccountNumber uint64, amount *big.Int) error {
	return v.router.Call("deposit", func(Implementation, Storage) error {
		if err := v.router.RequireOwner(caller); err != nil {
			return err
		}
		return v.router.Factory().DepositIntoLedger(v.router.Address(), toAccountNumber, amount)
	})
}

// WithdrawFromVaultForLedger debits amount of the wrapped token from ledger
// account fromAccountNumber and sends the underlying token to the owner.
func (v *Vault) WithdrawFromVaultForLedger(caller common.Address, fromAccountNumber uint64, amount *big.Int) error {
	return v.router.Call("withdraw", func(Implementation, Storage) error {
		if err := v.router.RequireOwner(caller); err != nil {
			return err
		}
		return v.router.Factory().WithdrawFromLedger(v.router.Address(), fromAccountNumber, amount)
	})
}

// UnderlyingBalanceOf reports the underlying amount the vault accounts for.
func (v *Vault) UnderlyingBalanceOf() (*big.Int, error) {
	return v.router.UnderlyingBalanceOf()
}

// WrappedBalance returns the wrapped amount the ledger holds on behalf of the
// vault across all its accounts.
func (v *Vault) WrappedBalance() *big.Int {
	return v.router.Factory().WrappedBalanceOf(v.router.Address())
}

func requirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
