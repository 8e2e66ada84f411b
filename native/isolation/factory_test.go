package isolation

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	"isovault/native/bank"
	nativecommon "isovault/native/common"
	"isovault/native/margin"
)

func TestDeriveVaultAddressIsStable(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	predicted := f.factory.CalculateVaultByAccount(owner)
	if got := DeriveVaultAddress(f.factory.Address(), owner); got != predicted {
		t.Fatalf("unexpected derive vault address: got %v want %v", got, predicted)
	}
	if got := DeriveVaultAddress(addr(0x99), owner); got == predicted {
		t.Fatalf("vault address collides across factories: %v", got)
	}
	if got := f.factory.CalculateVaultByAccount(addr(0xA2)); got == predicted {
		t.Fatalf("vault address collides across owners: %v", got)
	}

	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	if got := router.Address(); got != predicted {
		t.Fatalf("unexpected address: got %v want %v", got, predicted)
	}
	if got := f.factory.GetVaultByAccount(owner); got != predicted {
		t.Fatalf("unexpected vault by account: got %v want %v", got, predicted)
	}
	if got := f.factory.GetAccountByVault(predicted); got != owner {
		t.Fatalf("unexpected account by vault: got %v want %v", got, owner)
	}
}

func TestCreateVaultOncePerOwner(t *testing.T) {
	f := newUninitializedFixture(t)
	owner := addr(0xA1)
	_, err := f.factory.CreateVault(owner)
	if !errors.Is(err, ErrFactoryNotInitialized) {
		t.Fatalf("expected ErrFactoryNotInitialized, got %v", err)
	}

	if err := f.factory.OwnerInitialize(owner, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.factory.OwnerInitialize(f.gov, []common.Address{f.unwrapper.Address()}); err != nil {
		t.Fatalf("owner initialize: %v", err)
	}
	if err := f.factory.OwnerInitialize(f.gov, nil); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	if !router.IsInitialized() {
		t.Fatalf("expected router to be initialized")
	}
	if got := router.Owner(); got != owner {
		t.Fatalf("unexpected owner: got %v want %v", got, owner)
	}
	if got := router.VaultFactory(); got != f.factory.Address() {
		t.Fatalf("unexpected vault factory: got %v want %v", got, f.factory.Address())
	}
	if got := router.Implementation().Name(); got != "TokenVaultV1" {
		t.Fatalf("unexpected name: got %v want %v", got, "TokenVaultV1")
	}

	_, err = f.factory.CreateVault(owner)
	if !errors.Is(err, ErrVaultExists) {
		t.Fatalf("expected ErrVaultExists, got %v", err)
	}
	_, err = f.factory.CreateVault(common.Address{})
	if !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
	if got := f.factory.Vaults(); !reflect.DeepEqual(got, []common.Address{router.Address()}) {
		t.Fatalf("unexpected vaults: got %v want %v", got, []common.Address{router.Address()})
	}
	if got := f.recorder.count(events.TypeVaultCreated); got != 1 {
		t.Fatalf("unexpected %s count: got %d want 1", events.TypeVaultCreated, got)
	}
	if got := f.recorder.count(events.TypeFactoryInitialized); got != 1 {
		t.Fatalf("unexpected %s count: got %d want 1", events.TypeFactoryInitialized, got)
	}
}

func TestProxyRouterLifecycle(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	_, err := f.factory.CreateVaultNoInitialize(owner, owner)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	router, err := f.factory.CreateVaultNoInitialize(f.gov, owner)
	if err != nil {
		t.Fatalf("create vault no initialize: %v", err)
	}
	if router.IsInitialized() {
		t.Fatalf("expected router not to be initialized")
	}

	vault := NewVault(router)
	if err := vault.DepositIntoVaultForLedger(owner, 0, big.NewInt(1)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	_, err = vault.UnderlyingBalanceOf()
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	if err := router.Initialize(owner, owner); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := router.Initialize(f.factory.Address(), addr(0xA2)); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
	if err := router.Initialize(f.factory.Address(), owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := router.Initialize(f.factory.Address(), owner); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	balance, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	vault := f.fundedVault(t, owner, 1250)

	balance, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	requireAmount(t, 1250, balance)
	requireAmount(t, 1250, f.wei(vault.Address(), 0, f.wrappedMarket))
	requireAmount(t, 0, f.bank.BalanceOf(f.underlying, owner))
	requireAmount(t, 1250, vault.WrappedBalance())
	requireAmount(t, 1250, f.factory.TotalWrapped())
	requireAmount(t, 1250, f.bank.BalanceOf(f.factory.Address(), f.ledger.Address()))

	if err := vault.WithdrawFromVaultForLedger(owner, 0, big.NewInt(1250)); err != nil {
		t.Fatalf("withdraw from vault for ledger: %v", err)
	}
	balance, err = vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
	requireAmount(t, 1250, f.bank.BalanceOf(f.underlying, owner))
	if got := f.wei(vault.Address(), 0, f.wrappedMarket); got.Sign() != 0 {
		t.Fatalf("expected zero wei, got %s", got)
	}
	if got := f.factory.TotalWrapped(); got.Sign() != 0 {
		t.Fatalf("expected zero total wrapped, got %s", got)
	}
	if got := vault.WrappedBalance(); got.Sign() != 0 {
		t.Fatalf("expected zero wrapped balance, got %s", got)
	}
	if got := f.recorder.count(events.TypeVaultDeposit); got != 1 {
		t.Fatalf("unexpected %s count: got %d want 1", events.TypeVaultDeposit, got)
	}
	if got := f.recorder.count(events.TypeVaultWithdrawal); got != 1 {
		t.Fatalf("unexpected %s count: got %d want 1", events.TypeVaultWithdrawal, got)
	}
}

func TestCreateVaultAndDepositIntoLedger(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	if err := f.bank.Mint(f.underlying, owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err := f.factory.CreateVaultAndDepositIntoLedger(owner, 3, big.NewInt(101))
	if !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := f.factory.GetVaultByAccount(owner); got != (common.Address{}) {
		t.Fatal("failed creation must not leave a vault behind")
	}

	router, err := f.factory.CreateVaultAndDepositIntoLedger(owner, 3, big.NewInt(100))
	if err != nil {
		t.Fatalf("create vault and deposit into ledger: %v", err)
	}
	requireAmount(t, 100, f.wei(router.Address(), 3, f.wrappedMarket))
}

func TestVaultOperationsRequireOwner(t *testing.T) {
	f := newFixture(t)
	owner, stranger := addr(0xA1), addr(0xB1)
	vault := f.fundedVault(t, owner, 1250)
	if err := f.bank.Mint(f.underlying, stranger, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := vault.DepositIntoVaultForLedger(stranger, 0, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := vault.WithdrawFromVaultForLedger(stranger, 0, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.factory.DepositIntoLedger(stranger, 0, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.factory.WithdrawFromLedger(owner, 0, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := vault.Router().ExecuteDepositIntoVault(stranger, stranger, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := vault.Router().ExecuteWithdrawalFromVault(owner, owner, big.NewInt(10)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := vault.DepositIntoVaultForLedger(owner, 0, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	requireAmount(t, 10, f.bank.BalanceOf(f.underlying, stranger))
	requireAmount(t, 1250, f.wei(vault.Address(), 0, f.wrappedMarket))
	balance, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	requireAmount(t, 1250, balance)
}

func TestFailedWithdrawalRollsBackVault(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	vault := f.fundedVault(t, owner, 1250)

	err := vault.WithdrawFromVaultForLedger(owner, 1, big.NewInt(100))
	if !errors.Is(err, margin.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}

	if got := f.bank.BalanceOf(f.underlying, owner); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got)
	}
	balance, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	requireAmount(t, 1250, balance)
	requireAmount(t, 1250, vault.WrappedBalance())
	requireAmount(t, 1250, f.factory.TotalWrapped())
	_, queued := f.factory.QueuedTransfer()
	if queued {
		t.Fatalf("queued transfer left behind")
	}
}

func TestWrappedTokenMovesOnlyWhenQueued(t *testing.T) {
	f := newFixture(t)
	f.fundedVault(t, addr(0xA1), 1250)
	err := f.bank.Transfer(f.factory.Address(), f.ledger.Address(), addr(0xB1), big.NewInt(1))
	if !errors.Is(err, ErrInvalidQueuedTransfer) {
		t.Fatalf("expected ErrInvalidQueuedTransfer, got %v", err)
	}
	if err := f.factory.EnqueueTransferFromLedger(addr(0xB1), f.factory.GetVaultByAccount(addr(0xA1)), big.NewInt(1)); !errors.Is(err, ErrUntrustedConverter) {
		t.Fatalf("expected ErrUntrustedConverter, got %v", err)
	}
	if err := f.factory.EnqueueTransferFromLedger(f.unwrapper.Address(), addr(0xB1), big.NewInt(1)); !errors.Is(err, ErrUnknownVault) {
		t.Fatalf("expected ErrUnknownVault, got %v", err)
	}
}

func TestGuardedCallRejectsReentry(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	vault := NewVault(router)
	if err := f.bank.Mint(f.underlying, owner, big.NewInt(200)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	var reentryErr error
	f.bank.SetReceiveHook(vault.Address(), func(token, _ common.Address, _ *big.Int) error {
		if token != f.underlying {
			return nil
		}
		reentryErr = vault.DepositIntoVaultForLedger(owner, 1, big.NewInt(100))
		return reentryErr
	})
	err = vault.DepositIntoVaultForLedger(owner, 0, big.NewInt(100))
	if !errors.Is(err, ErrReentrant) {
		t.Fatalf("expected ErrReentrant, got %v", err)
	}
	if err := reentryErr; !errors.Is(err, ErrReentrant) {
		t.Fatalf("expected ErrReentrant, got %v", err)
	}
	requireAmount(t, 200, f.bank.BalanceOf(f.underlying, owner))
	if got := f.factory.TotalWrapped(); got.Sign() != 0 {
		t.Fatalf("expected zero total wrapped, got %s", got)
	}
	if router.storage.Guard().Held() {
		t.Fatal("guard must be released on failure")
	}

	f.bank.SetReceiveHook(vault.Address(), nil)
	if err := vault.DepositIntoVaultForLedger(owner, 0, big.NewInt(100)); err != nil {
		t.Fatalf("deposit into vault for ledger: %v", err)
	}
}

type renamedVault struct{ TokenVault }

func (renamedVault) Name() string { return "TokenVaultV2" }

func TestImplementationUpgradeKeepsStorage(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	vault := f.fundedVault(t, owner, 500)
	before := vault.Router().storage

	if err := f.factory.OwnerSetUserVaultImplementation(owner, renamedVault{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.factory.OwnerSetUserVaultImplementation(f.gov, nil); !errors.Is(err, ErrNilImplementation) {
		t.Fatalf("expected ErrNilImplementation, got %v", err)
	}
	if err := f.factory.OwnerSetUserVaultImplementation(f.gov, renamedVault{}); err != nil {
		t.Fatalf("owner set user vault implementation: %v", err)
	}

	if got := vault.Router().Implementation().Name(); got != "TokenVaultV2" {
		t.Fatalf("unexpected name: got %v want %v", got, "TokenVaultV2")
	}
	if vault.Router().storage != before {
		t.Fatalf("expected the same storage")
	}
	if got := f.factory.CalculateVaultByAccount(owner); got != vault.Address() {
		t.Fatalf("unexpected calculate vault by account: got %v want %v", got, vault.Address())
	}
	balance, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	requireAmount(t, 500, balance)
	if err := vault.WithdrawFromVaultForLedger(owner, 0, big.NewInt(500)); err != nil {
		t.Fatalf("withdraw from vault for ledger: %v", err)
	}
}

func TestDepositOtherTokenIntoLedgerForVaultOwner(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	vault := f.fundedVault(t, owner, 10)
	if err := f.bank.Mint(f.usdc, vault.Address(), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := f.factory.DepositOtherTokenIntoLedgerForVaultOwner(owner, 0, f.usdcMarket, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.factory.DepositOtherTokenIntoLedgerForVaultOwner(vault.Address(), 0, f.wrappedMarket, big.NewInt(100)); !errors.Is(err, ErrInvalidMarket) {
		t.Fatalf("expected ErrInvalidMarket, got %v", err)
	}
	if err := f.factory.DepositOtherTokenIntoLedgerForVaultOwner(vault.Address(), 2, f.usdcMarket, big.NewInt(100)); err != nil {
		t.Fatalf("deposit other token into ledger for vault owner: %v", err)
	}

	requireAmount(t, 100, f.wei(owner, 2, f.usdcMarket))
	if got := f.bank.BalanceOf(f.usdc, vault.Address()); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got)
	}
}

func TestSkipTransferCreditsHeldUnderlying(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	vault := NewVault(router)
	if err := f.bank.Mint(f.underlying, vault.Address(), big.NewInt(300)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := f.factory.SetShouldSkipTransfer(owner, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.factory.SetShouldSkipTransfer(vault.Address(), true); err != nil {
		t.Fatalf("set should skip transfer: %v", err)
	}
	if err := vault.DepositIntoVaultForLedger(owner, 0, big.NewInt(300)); err != nil {
		t.Fatalf("deposit into vault for ledger: %v", err)
	}
	if f.factory.ShouldSkipTransfer(vault.Address()) {
		t.Fatalf("skip flag not cleared")
	}
	requireAmount(t, 300, f.wei(vault.Address(), 0, f.wrappedMarket))
	balance, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	requireAmount(t, 300, balance)
}

func TestPausedFactoryRejectsOperations(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	vault := f.fundedVault(t, owner, 10)
	pauses := nativecommon.Pauses{}
	pauses.Set(nativecommon.ModuleIsolation, true)
	f.factory.SetPauses(pauses)

	_, err := f.factory.CreateVault(addr(0xA2))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := vault.WithdrawFromVaultForLedger(owner, 0, big.NewInt(10)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	pauses.Set(nativecommon.ModuleIsolation, false)
	if err := vault.WithdrawFromVaultForLedger(owner, 0, big.NewInt(10)); err != nil {
		t.Fatalf("withdraw from vault for ledger: %v", err)
	}
}
