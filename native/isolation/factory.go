package isolation

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	"isovault/native/bank"
	nativecommon "isovault/native/common"
	"isovault/native/margin"
	"isovault/observability/metrics"
)

// Factory deploys one ProxyRouter per owner and issues the wrapped token that
// represents vault collateral inside the ledger. The factory's own address is
// the wrapped token's address in the bank.
type Factory struct {
	address    common.Address
	governance common.Address
	underlying common.Address
	impl       Implementation
	ledger     *margin.Ledger
	bank       *bank.Bank
	journal    *nativecommon.Journal
	pauses     nativecommon.PauseView

	initialized bool
	converters  map[common.Address]bool
	vaults      map[common.Address]*ProxyRouter
	owners      map[common.Address]common.Address
	accounts    map[common.Address]common.Address
	wrapped     map[common.Address]*big.Int
	skip        map[common.Address]bool
	queued      *QueuedTransfer

	store   *Store
	logger  *slog.Logger
	emitter events.Emitter
	metrics *metrics.IsolationMetrics
}

// NewFactory creates a factory at address wrapping underlying. The factory
// installs itself as the wrapped token's transfer hook and joins the ledger's
// journal, so a failed ledger operation also rolls back the factory.
func NewFactory(address, governance, underlying common.Address, impl Implementation, ledger *margin.Ledger, b *bank.Bank) *Factory {
	f := &Factory{
		address:    address,
		governance: governance,
		underlying: underlying,
		impl:       impl,
		ledger:     ledger,
		bank:       b,
		converters: make(map[common.Address]bool),
		vaults:     make(map[common.Address]*ProxyRouter),
		owners:     make(map[common.Address]common.Address),
		accounts:   make(map[common.Address]common.Address),
		wrapped:    make(map[common.Address]*big.Int),
		skip:       make(map[common.Address]bool),
		logger:     slog.Default(),
		emitter:    events.NoopEmitter{},
	}
	f.journal = ledger.Journal()
	f.journal.Register(f)
	ledger.AddSettlementCheck(f.requireSettled)
	b.SetTransferHook(address, wrappedTokenHook{f})
	return f
}

func (f *Factory) SetJournal(j *nativecommon.Journal) {
	if f == nil || j == nil {
		return
	}
	f.journal = j
}

func (f *Factory) SetPauses(p nativecommon.PauseView) {
	if f == nil {
		return
	}
	f.pauses = p
}

func (f *Factory) SetLogger(logger *slog.Logger) {
	if f == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	f.logger = logger.With("component", "vault-factory", "factory", f.address.Hex())
}

func (f *Factory) SetEmitter(emitter events.Emitter) {
	if f == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	f.emitter = emitter
}

func (f *Factory) SetMetrics(m *metrics.IsolationMetrics) {
	if f == nil {
		return
	}
	f.metrics = m
}

// SetStore attaches the registry persisted by Flush.
func (f *Factory) SetStore(s *Store) {
	if f == nil {
		return
	}
	f.store = s
}

func (f *Factory) Address() common.Address         { return f.address }
func (f *Factory) Governance() common.Address      { return f.governance }
func (f *Factory) UnderlyingToken() common.Address { return f.underlying }
func (f *Factory) Ledger() *margin.Ledger          { return f.ledger }
func (f *Factory) Bank() *bank.Bank                { return f.bank }
func (f *Factory) IsInitialized() bool             { return f.initialized }

// Journal returns the journal vault operations run under.
func (f *Factory) Journal() *nativecommon.Journal { return f.journal }

// UserVaultImplementation returns the logic every router forwards to.
func (f *Factory) UserVaultImplementation() Implementation { return f.impl }

// MarketID returns the ledger market listing the wrapped token.
func (f *Factory) MarketID() (uint64, error) {
	return f.ledger.GetMarketIDByToken(f.address)
}

// OwnerInitialize marks the factory ready and trusts the supplied token
// converters. Governance only; runs once.
func (f *Factory) OwnerInitialize(caller common.Address, converters []common.Address) error {
	if caller != f.governance {
		return unauthorized(caller, "governance")
	}
	if f.initialized {
		return fmt.Errorf("%w: factory %s", ErrAlreadyInitialized, f.address.Hex())
	}
	for _, c := range converters {
		f.converters[c] = true
	}
	f.initialized = true
	f.logger.Info("factory initialized", "converters", len(converters))
	f.Emit(events.FactoryInitialized{Factory: f.address, Converters: append([]common.Address(nil), converters...)})
	return nil
}

// OwnerSetIsTokenConverterTrusted adds or removes a converter from the trusted
// set.
func (f *Factory) OwnerSetIsTokenConverterTrusted(caller, converter common.Address, trusted bool) error {
	if caller != f.governance {
		return unauthorized(caller, "governance")
	}
	if trusted {
		f.converters[converter] = true
	} else {
		delete(f.converters, converter)
	}
	f.logger.Info("converter trust updated", "converter", converter.Hex(), "trusted", trusted)
	f.Emit(events.ConverterTrustUpdated{Factory: f.address, Converter: converter, Trusted: trusted})
	return nil
}

// IsTokenConverterTrusted reports whether converter may queue wrapped token
// transfers.
func (f *Factory) IsTokenConverterTrusted(converter common.Address) bool {
	return f.converters[converter]
}

// OwnerSetUserVaultImplementation swaps the logic every router forwards to.
// Router storage is untouched.
func (f *Factory) OwnerSetUserVaultImplementation(caller common.Address, impl Implementation) error {
	if caller != f.governance {
		return unauthorized(caller, "governance")
	}
	if impl == nil {
		return ErrNilImplementation
	}
	previous := ""
	if f.impl != nil {
		previous = f.impl.Name()
	}
	f.impl = impl
	f.logger.Info("vault implementation upgraded", "previous", previous, "next", impl.Name())
	f.Emit(events.ImplementationUpgraded{Factory: f.address, Previous: previous, Next: impl.Name()})
	return nil
}

// CreateVault deploys and initializes owner's router. Anyone may create a
// vault for any owner, but only once.
func (f *Factory) CreateVault(owner common.Address) (*ProxyRouter, error) {
	if err := nativecommon.Guard(f.pauses, nativecommon.ModuleIsolation); err != nil {
		return nil, err
	}
	if !f.initialized {
		return nil, fmt.Errorf("%w: factory %s", ErrFactoryNotInitialized, f.address.Hex())
	}
	router, err := f.deploy(owner)
	if err != nil {
		return nil, err
	}
	if err := router.Initialize(f.address, owner); err != nil {
		f.undeploy(router)
		return nil, err
	}
	return router, nil
}

// CreateVaultNoInitialize deploys owner's router without binding it.
// Governance only.
func (f *Factory) CreateVaultNoInitialize(caller, owner common.Address) (*ProxyRouter, error) {
	if caller != f.governance {
		return nil, unauthorized(caller, "governance")
	}
	return f.deploy(owner)
}

// CreateVaultAndDepositIntoLedger creates owner's vault and deposits amount
// into its ledger account in one step.
func (f *Factory) CreateVaultAndDepositIntoLedger(owner common.Address, toAccountNumber uint64, amount *big.Int) (*ProxyRouter, error) {
	var router *ProxyRouter
	err := f.journal.Atomic(func() error {
		var err error
		if router, err = f.CreateVault(owner); err != nil {
			return err
		}
		return NewVault(router).DepositIntoVaultForLedger(owner, toAccountNumber, amount)
	})
	if err != nil {
		return nil, err
	}
	return router, nil
}

func (f *Factory) deploy(owner common.Address) (*ProxyRouter, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero owner", ErrInvalidAccount)
	}
	if f.impl == nil {
		return nil, ErrNilImplementation
	}
	if vault, ok := f.owners[owner]; ok {
		return nil, fmt.Errorf("%w: %s owns %s", ErrVaultExists, owner.Hex(), vault.Hex())
	}
	address := f.CalculateVaultByAccount(owner)
	router := newProxyRouter(address, f, f.impl.NewStorage())
	f.vaults[address] = router
	f.owners[owner] = address
	f.accounts[address] = owner
	f.metrics.ObserveVaultCreated(f.address.Hex())
	f.logger.Info("vault created", "owner", owner.Hex(), "vault", address.Hex())
	f.Emit(events.VaultCreated{Factory: f.address, Owner: owner, Vault: address})
	return router, nil
}

func (f *Factory) undeploy(router *ProxyRouter) {
	delete(f.owners, f.accounts[router.Address()])
	delete(f.accounts, router.Address())
	delete(f.vaults, router.Address())
}

// GetVaultByAccount returns owner's vault or the zero address.
func (f *Factory) GetVaultByAccount(owner common.Address) common.Address {
	return f.owners[owner]
}

// GetAccountByVault returns the owner bound to vault or the zero address.
func (f *Factory) GetAccountByVault(vault common.Address) common.Address {
	return f.accounts[vault]
}

// CalculateVaultByAccount derives owner's vault address whether or not it has
// been created.
func (f *Factory) CalculateVaultByAccount(owner common.Address) common.Address {
	return DeriveVaultAddress(f.address, owner)
}

// Router returns the router deployed at vault.
func (f *Factory) Router(vault common.Address) (*ProxyRouter, bool) {
	r, ok := f.vaults[vault]
	return r, ok
}

// IsVault reports whether addr is a router deployed by this factory.
func (f *Factory) IsVault(addr common.Address) bool {
	_, ok := f.vaults[addr]
	return ok
}

// Vaults returns every deployed vault address in ascending order.
func (f *Factory) Vaults() []common.Address {
	out := make([]common.Address, 0, len(f.vaults))
	for addr := range f.vaults {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// WrappedBalanceOf mirrors the wrapped amount the ledger holds for vault.
func (f *Factory) WrappedBalanceOf(vault common.Address) *big.Int {
	if bal, ok := f.wrapped[vault]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalWrapped returns the wrapped token supply. It always equals what the
// ledger holds in custody.
func (f *Factory) TotalWrapped() *big.Int {
	return f.bank.TotalSupply(f.address)
}

// DepositIntoLedger credits amount of the wrapped token to account
// toAccountNumber of the calling vault. The vault's implementation pulls the
// underlying token from the owner while the wrapped token enters the ledger.
func (f *Factory) DepositIntoLedger(caller common.Address, toAccountNumber uint64, amount *big.Int) error {
	if err := f.requireVaultOperation(caller, amount); err != nil {
		return err
	}
	marketID, err := f.MarketID()
	if err != nil {
		return err
	}
	err = f.operateQueued(caller, f.ledger.Address(), caller, amount,
		[]margin.AccountInfo{{Owner: caller, Number: toAccountNumber}},
		[]margin.ActionArgs{{
			ActionType:      margin.ActionDeposit,
			Amount:          margin.DeltaAmount(amount),
			PrimaryMarketID: marketID,
			OtherAddress:    caller,
		}})
	if err != nil {
		return err
	}
	f.Emit(events.VaultTransfer{Factory: f.address, Vault: caller, AccountNumber: toAccountNumber, Amount: new(big.Int).Set(amount), Deposit: true})
	return nil
}

// WithdrawFromLedger debits amount of the wrapped token from account
// fromAccountNumber of the calling vault and releases the underlying token to
// the owner.
func (f *Factory) WithdrawFromLedger(caller common.Address, fromAccountNumber uint64, amount *big.Int) error {
	if err := f.requireVaultOperation(caller, amount); err != nil {
		return err
	}
	marketID, err := f.MarketID()
	if err != nil {
		return err
	}
	err = f.operateQueued(f.ledger.Address(), caller, caller, amount,
		[]margin.AccountInfo{{Owner: caller, Number: fromAccountNumber}},
		[]margin.ActionArgs{{
			ActionType:      margin.ActionWithdraw,
			Amount:          margin.DeltaAmount(new(big.Int).Neg(amount)),
			PrimaryMarketID: marketID,
			OtherAddress:    caller,
		}})
	if err != nil {
		return err
	}
	f.Emit(events.VaultTransfer{Factory: f.address, Vault: caller, AccountNumber: fromAccountNumber, Amount: new(big.Int).Set(amount)})
	return nil
}

// DepositOtherTokenIntoLedgerForVaultOwner moves amount of another market's
// token from the calling vault into the vault owner's ledger account.
func (f *Factory) DepositOtherTokenIntoLedgerForVaultOwner(caller common.Address, toAccountNumber, marketID uint64, amount *big.Int) error {
	if err := f.requireVaultOperation(caller, amount); err != nil {
		return err
	}
	own, err := f.MarketID()
	if err != nil {
		return err
	}
	if marketID == own {
		return fmt.Errorf("%w: market %d is the wrapped token", ErrInvalidMarket, marketID)
	}
	token, err := f.ledger.GetMarketTokenAddress(marketID)
	if err != nil {
		return err
	}
	if err := f.bank.Transfer(token, caller, f.address, amount); err != nil {
		return err
	}
	owner := f.vaults[caller].Owner()
	return f.ledger.Operate(f.address,
		[]margin.AccountInfo{{Owner: owner, Number: toAccountNumber}},
		[]margin.ActionArgs{{
			ActionType:      margin.ActionDeposit,
			Amount:          margin.DeltaAmount(amount),
			PrimaryMarketID: marketID,
			OtherAddress:    f.address,
		}})
}

// SetShouldSkipTransfer makes the next deposit of the calling vault credit
// the ledger without pulling the underlying token, because the vault already
// holds it.
func (f *Factory) SetShouldSkipTransfer(caller common.Address, skip bool) error {
	router, ok := f.vaults[caller]
	if !ok || !router.IsInitialized() {
		return unauthorized(caller, "vault")
	}
	if skip {
		f.skip[caller] = true
	} else {
		delete(f.skip, caller)
	}
	return nil
}

// ShouldSkipTransfer reports whether vault's next deposit skips the pull.
func (f *Factory) ShouldSkipTransfer(vault common.Address) bool {
	return f.skip[vault]
}

func (f *Factory) requireVaultOperation(caller common.Address, amount *big.Int) error {
	if err := nativecommon.Guard(f.pauses, nativecommon.ModuleIsolation); err != nil {
		return err
	}
	router, ok := f.vaults[caller]
	if !ok || !router.IsInitialized() {
		return unauthorized(caller, "vault")
	}
	return requirePositive(amount)
}

// Emit publishes evt through the factory emitter. Implementations use it for
// their own vault events.
func (f *Factory) Emit(evt events.Event) {
	if f == nil || f.emitter == nil || evt == nil {
		return
	}
	f.emitter.Emit(evt)
}

// Checkpoint implements common.Journaled. Routers are restored in place so
// outstanding handles stay valid.
func (f *Factory) Checkpoint() func() {
	type routerState struct {
		owner       common.Address
		initialized bool
	}
	initialized := f.initialized
	impl := f.impl
	converters := make(map[common.Address]bool, len(f.converters))
	for k, v := range f.converters {
		converters[k] = v
	}
	vaults := make(map[common.Address]*ProxyRouter, len(f.vaults))
	routers := make(map[*ProxyRouter]routerState, len(f.vaults))
	for addr, r := range f.vaults {
		vaults[addr] = r
		routers[r] = routerState{owner: r.owner, initialized: r.initialized}
	}
	owners := make(map[common.Address]common.Address, len(f.owners))
	accounts := make(map[common.Address]common.Address, len(f.accounts))
	for k, v := range f.owners {
		owners[k] = v
		accounts[v] = k
	}
	wrapped := make(map[common.Address]*big.Int, len(f.wrapped))
	for k, v := range f.wrapped {
		wrapped[k] = new(big.Int).Set(v)
	}
	skip := make(map[common.Address]bool, len(f.skip))
	for k, v := range f.skip {
		skip[k] = v
	}
	queued := f.queued.clone()
	return func() {
		f.initialized = initialized
		f.impl = impl
		f.converters = converters
		f.vaults = vaults
		for r, st := range routers {
			r.owner = st.owner
			r.initialized = st.initialized
		}
		f.owners = owners
		f.accounts = accounts
		f.wrapped = wrapped
		f.skip = skip
		f.queued = queued
	}
}
