package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"isovault/config"
	"isovault/core/events"
	"isovault/native/bank"
	nativecommon "isovault/native/common"
	"isovault/native/gmx"
	"isovault/native/isolation"
	"isovault/native/isolation/glp"
	"isovault/native/isolation/plvglp"
	"isovault/native/margin"
	"isovault/native/plutus"
	"isovault/observability/metrics"
	"isovault/storage"
)

var (
	ErrUnknownAsset = errors.New("core: unknown isolated asset")
	ErrNoVault      = errors.New("core: owner has no vault")
)

// Isolated asset names.
const (
	AssetGLP    = "glp"
	AssetPlvGLP = "plvglp"
)

// SystemAddress derives the fixed address of a protocol account from its label.
func SystemAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("isovault/" + label)))
}

// Tokens are the bank token addresses the protocol wires together.
func Tokens() gmx.Tokens {
	return gmx.Tokens{
		GMX:   SystemAddress("token/gmx"),
		EsGMX: SystemAddress("token/esgmx"),
		WETH:  SystemAddress("token/weth"),
		USDC:  SystemAddress("token/usdc"),
		FsGLP: SystemAddress("token/fsglp"),
	}
}

// Asset groups one isolated market: its factory, traders, oracle and market id.
type Asset struct {
	Name      string
	Factory   *isolation.Factory
	Unwrapper *isolation.UnwrapperTrader
	Wrapper   *isolation.WrapperTrader
	Oracle    margin.PriceOracle
	MarketID  uint64
}

// Options carries the ambient collaborators. Zero values fall back to the
// slog default logger, a discarding emitter and no persistence.
type Options struct {
	Logger  *slog.Logger
	Emitter events.Emitter
	Metrics *metrics.IsolationMetrics
	DB      storage.Database
	Now     func() int64
	// SnapshotPath, when set, receives a bbolt export of every registry on
	// Flush.
	SnapshotPath string
}

// Protocol is the wired system: simulated bank, GMX, Plutus and margin ledger
// plus the GLP and plvGLP isolation markets.
type Protocol struct {
	Bank    *bank.Bank
	GMX     *gmx.Ecosystem
	Plutus  *plutus.Vault
	Ledger  *margin.Ledger
	Pauses  nativecommon.Pauses
	Markets map[string]uint64

	governance common.Address
	tokens     gmx.Tokens
	assets     map[string]*Asset
	logger     *slog.Logger
	snapshot   string
}

func New(cfg *config.Config, opts Options) (*Protocol, error) {
	if cfg == nil {
		return nil, fmt.Errorf("core: nil config")
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	gov, err := cfg.GovernanceAddress()
	if err != nil {
		return nil, err
	}
	params, err := cfg.GMX.Params()
	if err != nil {
		return nil, err
	}
	seed, err := cfg.GMX.SeedLiquidity()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}

	p := &Protocol{
		Bank:       bank.New(),
		Pauses:     nativecommon.Pauses{},
		Markets:    make(map[string]uint64),
		governance: gov,
		tokens:     Tokens(),
		assets:     make(map[string]*Asset),
		logger:     logger.With("component", "core"),
		snapshot:   opts.SnapshotPath,
	}

	p.GMX = gmx.NewEcosystem(p.Bank, p.tokens, gmx.Addresses{
		Router:    SystemAddress("gmx/router"),
		Pool:      SystemAddress("gmx/pool"),
		VesterGlp: SystemAddress("gmx/vester-glp"),
		VesterGmx: SystemAddress("gmx/vester-gmx"),
	}, params)
	if opts.Now != nil {
		p.GMX.SetNowFunc(opts.Now)
	}
	if _, err := p.GMX.SeedPool(SystemAddress("gmx/seeder"), seed); err != nil {
		return nil, fmt.Errorf("core: seed glp pool: %w", err)
	}
	p.Plutus = plutus.NewVault(p.Bank, SystemAddress("plutus/vault"), SystemAddress("token/plvglp"), p.tokens.FsGLP, cfg.Plutus.ExitFeeBps)

	p.Ledger = margin.NewLedger(SystemAddress("margin/ledger"), gov, p.Bank)
	p.Ledger.Journal().Register(p.GMX)
	p.Ledger.SetLogger(logger)
	p.Ledger.SetMetrics(opts.Metrics)
	p.Ledger.SetPauses(p.Pauses)

	glpFactory := isolation.NewFactory(SystemAddress("isolation/glp"), gov, p.tokens.FsGLP, glp.NewImplementation(p.GMX), p.Ledger, p.Bank)
	glpAsset, err := p.listAsset(AssetGLP, glpFactory, glp.NewPriceOracle(p.GMX, glpFactory.Address()), glp.NewConverter(p.GMX), opts, emitter)
	if err != nil {
		return nil, err
	}
	plvFactory := isolation.NewFactory(SystemAddress("isolation/plvglp"), gov, p.Plutus.Share(), plvglp.Implementation{}, p.Ledger, p.Bank)
	plvAsset, err := p.listAsset(AssetPlvGLP, plvFactory, plvglp.NewPriceOracle(p.GMX, p.Plutus, plvFactory.Address()), plvglp.NewConverter(p.GMX, p.Plutus), opts, emitter)
	if err != nil {
		return nil, err
	}

	fixed := margin.NewFixedPriceOracle()
	for _, market := range cfg.Markets {
		token, err := p.marketToken(market.Symbol)
		if err != nil {
			return nil, err
		}
		price, err := market.PriceValue()
		if err != nil {
			return nil, err
		}
		fixed.SetPrice(token, price)
		id, err := p.Ledger.OwnerAddMarket(gov, token, fixed, market.Borrowable)
		if err != nil {
			return nil, err
		}
		p.Markets[market.Symbol] = id
	}

	for _, asset := range []*Asset{glpAsset, plvAsset} {
		if err := p.Ledger.OwnerSetGlobalOperator(gov, asset.Factory.Address(), true); err != nil {
			return nil, err
		}
		if err := asset.Factory.OwnerInitialize(gov, []common.Address{asset.Unwrapper.Address(), asset.Wrapper.Address()}); err != nil {
			return nil, err
		}
	}
	p.logger.Info("protocol wired", "governance", gov.Hex(), "markets", p.Ledger.GetNumMarkets())
	return p, nil
}

type converter interface {
	isolation.WrapConverter
	isolation.UnwrapConverter
}

func (p *Protocol) listAsset(name string, factory *isolation.Factory, oracle margin.PriceOracle, conv converter, opts Options, emitter events.Emitter) (*Asset, error) {
	factory.SetLogger(opts.Logger)
	factory.SetEmitter(emitter)
	factory.SetMetrics(opts.Metrics)
	factory.SetPauses(p.Pauses)
	if opts.DB != nil {
		factory.SetStore(isolation.NewStore(opts.DB, factory.Address()))
	}

	marketID, err := p.Ledger.OwnerAddMarket(p.governance, factory.Address(), oracle, false)
	if err != nil {
		return nil, err
	}
	unwrapper := isolation.NewUnwrapperTrader(SystemAddress("trader/"+name+"/unwrapper"), factory, p.tokens.USDC, conv)
	wrapper := isolation.NewWrapperTrader(SystemAddress("trader/"+name+"/wrapper"), factory, p.tokens.USDC, conv)
	unwrapper.SetLogger(opts.Logger)
	wrapper.SetLogger(opts.Logger)
	unwrapper.SetEmitter(emitter)
	wrapper.SetEmitter(emitter)
	unwrapper.SetMetrics(opts.Metrics)
	wrapper.SetMetrics(opts.Metrics)
	unwrapper.SetPauses(p.Pauses)
	wrapper.SetPauses(p.Pauses)
	p.Ledger.RegisterContract(unwrapper.Address(), unwrapper)
	p.Ledger.RegisterContract(wrapper.Address(), wrapper)

	asset := &Asset{
		Name:      name,
		Factory:   factory,
		Unwrapper: unwrapper,
		Wrapper:   wrapper,
		Oracle:    oracle,
		MarketID:  marketID,
	}
	p.assets[name] = asset
	return asset, nil
}

func (p *Protocol) marketToken(symbol string) (common.Address, error) {
	switch symbol {
	case config.SymbolUSDC:
		return p.tokens.USDC, nil
	case config.SymbolWETH:
		return p.tokens.WETH, nil
	}
	return common.Address{}, fmt.Errorf("core: unknown market symbol %q", symbol)
}

func (p *Protocol) Governance() common.Address { return p.governance }
func (p *Protocol) Tokens() gmx.Tokens         { return p.tokens }

// Asset returns the isolated market registered under name.
func (p *Protocol) Asset(name string) (*Asset, error) {
	asset, ok := p.assets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}
	return asset, nil
}

// Assets returns both isolated markets, GLP first.
func (p *Protocol) Assets() []*Asset {
	return []*Asset{p.assets[AssetGLP], p.assets[AssetPlvGLP]}
}

// CreateGLPVault creates owner's GLP vault.
func (p *Protocol) CreateGLPVault(owner common.Address) (*glp.Vault, error) {
	router, err := p.assets[AssetGLP].Factory.CreateVault(owner)
	if err != nil {
		return nil, err
	}
	return glp.NewVault(router), nil
}

// GLPVault returns owner's existing GLP vault.
func (p *Protocol) GLPVault(owner common.Address) (*glp.Vault, error) {
	router, err := p.router(AssetGLP, owner)
	if err != nil {
		return nil, err
	}
	return glp.NewVault(router), nil
}

// CreatePlvGLPVault creates owner's plvGLP vault.
func (p *Protocol) CreatePlvGLPVault(owner common.Address) (*isolation.Vault, error) {
	router, err := p.assets[AssetPlvGLP].Factory.CreateVault(owner)
	if err != nil {
		return nil, err
	}
	return isolation.NewVault(router), nil
}

// PlvGLPVault returns owner's existing plvGLP vault.
func (p *Protocol) PlvGLPVault(owner common.Address) (*isolation.Vault, error) {
	router, err := p.router(AssetPlvGLP, owner)
	if err != nil {
		return nil, err
	}
	return isolation.NewVault(router), nil
}

// Vault returns owner's vault handle for the named asset.
func (p *Protocol) Vault(asset string, owner common.Address) (*isolation.Vault, error) {
	router, err := p.router(asset, owner)
	if err != nil {
		return nil, err
	}
	return isolation.NewVault(router), nil
}

func (p *Protocol) router(asset string, owner common.Address) (*isolation.ProxyRouter, error) {
	a, err := p.Asset(asset)
	if err != nil {
		return nil, err
	}
	router, ok := a.Factory.Router(a.Factory.GetVaultByAccount(owner))
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoVault, owner.Hex(), asset)
	}
	return router, nil
}

// BuyGlp mints fsGLP for account from usdc base units it already holds.
func (p *Protocol) BuyGlp(account common.Address, usdc *big.Int) (*big.Int, error) {
	return p.GMX.MintAndStakeGlp(account, p.tokens.USDC, usdc, nil)
}

// BuyPlvGlp mints fsGLP from usdc and deposits it into Plutus.
func (p *Protocol) BuyPlvGlp(account common.Address, usdc *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := p.Ledger.Journal().Atomic(func() error {
		minted, err := p.BuyGlp(account, usdc)
		if err != nil {
			return err
		}
		shares, err = p.Plutus.Deposit(account, minted)
		return err
	})
	return shares, err
}

// Flush persists every registry to the attached store and, when configured,
// exports a bbolt snapshot.
func (p *Protocol) Flush() error {
	for _, asset := range p.Assets() {
		if err := asset.Factory.Flush(); err != nil {
			return fmt.Errorf("core: flush %s: %w", asset.Name, err)
		}
		if p.snapshot == "" {
			continue
		}
		if err := isolation.WriteSnapshot(p.snapshot, asset.Factory.Address(), asset.Factory.Records()); err != nil {
			return fmt.Errorf("core: snapshot %s: %w", asset.Name, err)
		}
	}
	return nil
}

// Restore reloads every registry from the attached store and returns the
// number of vaults recovered. Simulated balances are not durable; only the
// registries and their wrapped balance mirrors come back.
func (p *Protocol) Restore() (int, error) {
	total := 0
	for _, asset := range p.Assets() {
		n, err := asset.Factory.Restore()
		if err != nil {
			return total, fmt.Errorf("core: restore %s: %w", asset.Name, err)
		}
		total += n
	}
	if total > 0 {
		p.logger.Info("registries restored", "vaults", total)
	}
	return total, nil
}
