package glp

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	"isovault/native/bank"
	"isovault/native/gmx"
	"isovault/native/isolation"
	"isovault/native/margin"
)

const day = int64(24 * 60 * 60)

func addr(fill byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func units(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func requireAmount(t *testing.T, want, got *big.Int) {
	t.Helper()
	if got == nil || want.Cmp(got) != 0 {
		t.Fatalf("amount mismatch: want %s, got %v", want, got)
	}
}

type clock struct{ now int64 }

func (c *clock) Now() int64         { return c.now }
func (c *clock) Advance(secs int64) { c.now += secs }

type recorder struct{ events []events.Event }

func (r *recorder) Emit(evt events.Event) { r.events = append(r.events, evt) }

func (r *recorder) count(eventType string) int {
	n := 0
	for _, evt := range r.events {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	bank       *bank.Bank
	eco        *gmx.Ecosystem
	clock      *clock
	ledger     *margin.Ledger
	factory    *isolation.Factory
	recorder   *recorder
	tokens     gmx.Tokens
	gov        common.Address
	glpMarket  uint64
	usdcMarket uint64
	wethMarket uint64
	unwrapper  *isolation.UnwrapperTrader
	wrapper    *isolation.WrapperTrader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bank.New()
	tokens := gmx.Tokens{
		GMX:   addr(0x11),
		EsGMX: addr(0x12),
		WETH:  addr(0x13),
		USDC:  addr(0x14),
		FsGLP: addr(0x15),
	}
	addrs := gmx.Addresses{
		Router:    addr(0x20),
		Pool:      addr(0x21),
		VesterGlp: addr(0x22),
		VesterGmx: addr(0x23),
	}
	c := &clock{now: 1_700_000_000}
	eco := gmx.NewEcosystem(b, tokens, addrs, gmx.DefaultParams())
	eco.SetNowFunc(c.Now)
	_, err := eco.SeedPool(addr(0xEE), units(10_000_000, 6))
	if err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	gov := addr(0x01)
	ledger := margin.NewLedger(addr(0x02), gov, b)
	ledger.Journal().Register(eco)
	factory := isolation.NewFactory(addr(0x03), gov, tokens.FsGLP, NewImplementation(eco), ledger, b)
	rec := &recorder{}
	factory.SetEmitter(rec)

	fixed := margin.NewFixedPriceOracle()
	fixed.SetPrice(tokens.USDC, units(1, 30))
	fixed.SetPrice(tokens.WETH, units(1_500, 18))
	glpMarket, err := ledger.OwnerAddMarket(gov, factory.Address(), NewPriceOracle(eco, factory.Address()), false)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	usdcMarket, err := ledger.OwnerAddMarket(gov, tokens.USDC, fixed, true)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	wethMarket, err := ledger.OwnerAddMarket(gov, tokens.WETH, fixed, true)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	if err := ledger.OwnerSetGlobalOperator(gov, factory.Address(), true); err != nil {
		t.Fatalf("owner set global operator: %v", err)
	}

	conv := NewConverter(eco)
	unwrapper := isolation.NewUnwrapperTrader(addr(0x06), factory, tokens.USDC, conv)
	wrapper := isolation.NewWrapperTrader(addr(0x07), factory, tokens.USDC, conv)
	ledger.RegisterContract(unwrapper.Address(), unwrapper)
	ledger.RegisterContract(wrapper.Address(), wrapper)
	if err := factory.OwnerInitialize(gov, []common.Address{unwrapper.Address(), wrapper.Address()}); err != nil {
		t.Fatalf("owner initialize: %v", err)
	}

	return &fixture{
		bank:       b,
		eco:        eco,
		clock:      c,
		ledger:     ledger,
		factory:    factory,
		recorder:   rec,
		tokens:     tokens,
		gov:        gov,
		glpMarket:  glpMarket,
		usdcMarket: usdcMarket,
		wethMarket: wethMarket,
		unwrapper:  unwrapper,
		wrapper:    wrapper,
	}
}

// mintGlp buys fsGLP for account with usdc whole USDC.
func (f *fixture) mintGlp(t *testing.T, account common.Address, usdc int64) *big.Int {
	t.Helper()
	amount := units(usdc, 6)
	if err := f.bank.Mint(f.tokens.USDC, account, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	glp, err := f.eco.MintAndStakeGlp(account, f.tokens.USDC, amount, nil)
	if err != nil {
		t.Fatalf("mint and stake glp: %v", err)
	}
	return glp
}

func (f *fixture) createVault(t *testing.T, owner common.Address) *Vault {
	t.Helper()
	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	return NewVault(router)
}

// fundedVault creates owner's vault and deposits fsGLP bought with usdc into
// ledger account 0.
func (f *fixture) fundedVault(t *testing.T, owner common.Address, usdc int64) (*Vault, *big.Int) {
	t.Helper()
	vault := f.createVault(t, owner)
	glp := f.mintGlp(t, owner, usdc)
	if err := vault.DepositIntoVaultForLedger(owner, 0, glp); err != nil {
		t.Fatalf("deposit into vault for ledger: %v", err)
	}
	return vault, glp
}

func (f *fixture) stakeGmx(t *testing.T, vault *Vault, amount *big.Int) {
	t.Helper()
	if err := f.bank.Mint(f.tokens.GMX, vault.Owner(), amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := vault.StakeGmx(vault.Owner(), amount); err != nil {
		t.Fatalf("stake gmx: %v", err)
	}
}

// claimEsGmx lets rewards accrue for days and leaves the esGMX idle in the
// vault.
func (f *fixture) claimEsGmx(t *testing.T, vault *Vault, days int64) *big.Int {
	t.Helper()
	f.clock.Advance(days * day)
	res, err := vault.HandleRewards(vault.Owner(), RewardOptions{ClaimEsGmx: true})
	if err != nil {
		t.Fatalf("handle rewards: %v", err)
	}
	if got := res.EsGmx; got.Sign() <= 0 {
		t.Fatalf("expected positive es gmx, got %v", got)
	}
	return res.EsGmx
}

func (f *fixture) wei(owner common.Address, number, market uint64) *big.Int {
	return f.ledger.GetAccountWei(margin.AccountInfo{Owner: owner, Number: number}, market)
}

func (f *fixture) balance(token, holder common.Address) *big.Int {
	return f.bank.BalanceOf(token, holder)
}

func mustAmount(t *testing.T, fn func() (*big.Int, error)) *big.Int {
	t.Helper()
	v, err := fn()
	if err != nil {
		t.Fatalf("fn: %v", err)
	}
	return v
}
