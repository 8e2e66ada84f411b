package plvglp

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/bank"
	"isovault/native/gmx"
	"isovault/native/isolation"
	"isovault/native/isolation/glp"
	"isovault/native/margin"
	"isovault/native/plutus"
)

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

type fixture struct {
	bank       *bank.Bank
	eco        *gmx.Ecosystem
	plv        *plutus.Vault
	ledger     *margin.Ledger
	factory    *isolation.Factory
	tokens     gmx.Tokens
	gov        common.Address
	plvMarket  uint64
	usdcMarket uint64
	unwrapper  *isolation.UnwrapperTrader
	wrapper    *isolation.WrapperTrader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := bank.New()
	tokens := gmx.Tokens{GMX: addr(0x11), EsGMX: addr(0x12), WETH: addr(0x13), USDC: addr(0x14), FsGLP: addr(0x15)}
	eco := gmx.NewEcosystem(b, tokens, gmx.Addresses{
		Router:    addr(0x20),
		Pool:      addr(0x21),
		VesterGlp: addr(0x22),
		VesterGmx: addr(0x23),
	}, gmx.DefaultParams())
	eco.SetNowFunc(func() int64 { return 1_700_000_000 })
	_, err := eco.SeedPool(addr(0xEE), units(10_000_000, 6))
	if err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	plv := plutus.NewVault(b, addr(0x30), addr(0x31), tokens.FsGLP, plutus.DefaultExitFeeBps)

	gov := addr(0x01)
	ledger := margin.NewLedger(addr(0x02), gov, b)
	ledger.Journal().Register(eco)
	factory := isolation.NewFactory(addr(0x03), gov, plv.Share(), Implementation{}, ledger, b)

	fixed := margin.NewFixedPriceOracle()
	fixed.SetPrice(tokens.USDC, units(1, 30))
	plvMarket, err := ledger.OwnerAddMarket(gov, factory.Address(), NewPriceOracle(eco, plv, factory.Address()), false)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	usdcMarket, err := ledger.OwnerAddMarket(gov, tokens.USDC, fixed, true)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	if err := ledger.OwnerSetGlobalOperator(gov, factory.Address(), true); err != nil {
		t.Fatalf("owner set global operator: %v", err)
	}

	conv := NewConverter(eco, plv)
	unwrapper := isolation.NewUnwrapperTrader(addr(0x06), factory, tokens.USDC, conv)
	wrapper := isolation.NewWrapperTrader(addr(0x07), factory, tokens.USDC, conv)
	ledger.RegisterContract(unwrapper.Address(), unwrapper)
	ledger.RegisterContract(wrapper.Address(), wrapper)
	if err := factory.OwnerInitialize(gov, []common.Address{unwrapper.Address(), wrapper.Address()}); err != nil {
		t.Fatalf("owner initialize: %v", err)
	}

	f := &fixture{
		bank:       b,
		eco:        eco,
		plv:        plv,
		ledger:     ledger,
		factory:    factory,
		tokens:     tokens,
		gov:        gov,
		plvMarket:  plvMarket,
		usdcMarket: usdcMarket,
		unwrapper:  unwrapper,
		wrapper:    wrapper,
	}
	f.buyPlvGlp(t, addr(0xEF), 100_000)
	return f
}

// buyPlvGlp mints GLP with usdc whole USDC and deposits it into Plutus.
func (f *fixture) buyPlvGlp(t *testing.T, account common.Address, usdc int64) *big.Int {
	t.Helper()
	amount := units(usdc, 6)
	if err := f.bank.Mint(f.tokens.USDC, account, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	minted, err := f.eco.MintAndStakeGlp(account, f.tokens.USDC, amount, nil)
	if err != nil {
		t.Fatalf("mint and stake glp: %v", err)
	}
	shares, err := f.plv.Deposit(account, minted)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return shares
}

func (f *fixture) fundedVault(t *testing.T, owner common.Address, usdc int64) (*isolation.Vault, *big.Int) {
	t.Helper()
	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	vault := isolation.NewVault(router)
	shares := f.buyPlvGlp(t, owner, usdc)
	if err := vault.DepositIntoVaultForLedger(owner, 0, shares); err != nil {
		t.Fatalf("deposit into vault for ledger: %v", err)
	}
	return vault, shares
}

func (f *fixture) wei(owner common.Address, market uint64) *big.Int {
	return f.ledger.GetAccountWei(margin.AccountInfo{Owner: owner}, market)
}

func TestUnwrapQuoteRedeemsAtExchangeRate(t *testing.T) {
	f := newFixture(t)
	amount := units(1_000, 18)
	num, den := f.plv.ExchangeRate()
	glpAmount := new(big.Int).Mul(amount, num)
	glpAmount.Quo(glpAmount, den)
	want, err := f.eco.QuoteUnstakeAndRedeemGlp(f.tokens.USDC, glpAmount)
	if err != nil {
		t.Fatalf("quote unstake and redeem glp: %v", err)
	}

	got, err := f.unwrapper.GetExchangeCost(f.factory.Address(), f.tokens.USDC, amount, nil)
	if err != nil {
		t.Fatalf("exchange cost: %v", err)
	}
	requireAmount(t, want, got)
}

func TestOwnerUnwrapsThroughCallAndSell(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	vault, shares := f.fundedVault(t, owner, 1_250)
	if got := vault.Router().Implementation().Name(); got != ImplementationName {
		t.Fatalf("unexpected name: got %v want %v", got, ImplementationName)
	}
	f.ledger.SetOperator(vault.Address(), owner, true)

	quote, err := f.unwrapper.GetExchangeCost(f.factory.Address(), f.tokens.USDC, shares, nil)
	if err != nil {
		t.Fatalf("exchange cost: %v", err)
	}
	actions, err := f.unwrapper.CreateActionsForUnwrappingForLiquidation(0, 0, vault.Address(), vault.Address(), f.usdcMarket, f.plvMarket, quote, shares)
	if err != nil {
		t.Fatalf("create actions for unwrapping for liquidation: %v", err)
	}
	if err := f.ledger.Operate(owner, []margin.AccountInfo{{Owner: vault.Address()}}, actions); err != nil {
		t.Fatalf("operate: %v", err)
	}

	if got := f.wei(vault.Address(), f.plvMarket); got.Sign() != 0 {
		t.Fatalf("expected zero wei, got %s", got)
	}
	requireAmount(t, quote, f.wei(vault.Address(), f.usdcMarket))
	underlying, err := vault.UnderlyingBalanceOf()
	if err != nil {
		t.Fatalf("underlying balance: %v", err)
	}
	if underlying.Sign() != 0 {
		t.Fatalf("expected zero underlying, got %s", underlying)
	}
	if got := f.bank.BalanceOf(f.plv.Share(), f.unwrapper.Address()); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got)
	}
	if got := f.bank.BalanceOf(f.tokens.FsGLP, f.unwrapper.Address()); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got)
	}
}

func TestLiquidatorSeizesAndUnwraps(t *testing.T) {
	f := newFixture(t)
	owner, liquidator := addr(0xA1), addr(0xC1)
	vault, shares := f.fundedVault(t, owner, 1_250)
	if err := f.ledger.OwnerSetGlobalOperator(f.gov, liquidator, true); err != nil {
		t.Fatalf("owner set global operator: %v", err)
	}

	amount := new(big.Int).Quo(shares, big.NewInt(4))
	quote, err := f.unwrapper.GetExchangeCost(f.factory.Address(), f.tokens.USDC, amount, nil)
	if err != nil {
		t.Fatalf("exchange cost: %v", err)
	}
	actions, err := f.unwrapper.CreateActionsForUnwrappingForLiquidation(0, 1, liquidator, vault.Address(), f.usdcMarket, f.plvMarket, quote, amount)
	if err != nil {
		t.Fatalf("create actions for unwrapping for liquidation: %v", err)
	}
	seize := margin.ActionArgs{
		ActionType:      margin.ActionTransfer,
		AccountID:       1,
		OtherAccountID:  0,
		Amount:          margin.DeltaAmount(new(big.Int).Neg(amount)),
		PrimaryMarketID: f.plvMarket,
	}
	accounts := []margin.AccountInfo{{Owner: liquidator}, {Owner: vault.Address()}}
	if err := f.ledger.Operate(liquidator, accounts, append([]margin.ActionArgs{seize}, actions...)); err != nil {
		t.Fatalf("operate: %v", err)
	}

	requireAmount(t, quote, f.wei(liquidator, f.usdcMarket))
	requireAmount(t, new(big.Int).Sub(shares, amount), f.wei(vault.Address(), f.plvMarket))
	requireAmount(t, new(big.Int).Sub(shares, amount), f.factory.TotalWrapped())
}

func TestWrapUsdcIntoPlvGlp(t *testing.T) {
	f := newFixture(t)
	owner := addr(0xA1)
	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	vault := isolation.NewVault(router)
	f.ledger.SetOperator(vault.Address(), owner, true)
	usdc := units(800, 6)
	if err := f.bank.Mint(f.tokens.USDC, owner, usdc); err != nil {
		t.Fatalf("mint: %v", err)
	}
	account := []margin.AccountInfo{{Owner: vault.Address()}}
	if err := f.ledger.Operate(owner, account, []margin.ActionArgs{{
		ActionType:      margin.ActionDeposit,
		Amount:          margin.DeltaAmount(usdc),
		PrimaryMarketID: f.usdcMarket,
		OtherAddress:    owner,
	}}); err != nil {
		t.Fatalf("operate: %v", err)
	}

	quote, err := f.wrapper.GetExchangeCost(f.tokens.USDC, f.factory.Address(), usdc, nil)
	if err != nil {
		t.Fatalf("exchange cost: %v", err)
	}
	actions, err := f.wrapper.CreateActionsForWrapping(0, 0, vault.Address(), vault.Address(), f.plvMarket, f.usdcMarket, quote, usdc)
	if err != nil {
		t.Fatalf("create actions for wrapping: %v", err)
	}
	if err := f.ledger.Operate(owner, account, actions); err != nil {
		t.Fatalf("operate: %v", err)
	}

	requireAmount(t, quote, f.wei(vault.Address(), f.plvMarket))
	requireAmount(t, quote, f.bank.BalanceOf(f.plv.Share(), vault.Address()))
	if got := f.wei(vault.Address(), f.usdcMarket); got.Sign() != 0 {
		t.Fatalf("expected zero wei, got %s", got)
	}
}

func TestOracleAppliesExitFee(t *testing.T) {
	f := newFixture(t)
	oracle := NewPriceOracle(f.eco, f.plv, f.factory.Address())
	price, err := oracle.GetPrice(f.factory.Address())
	if err != nil {
		t.Fatalf("price: %v", err)
	}

	num, den := f.plv.ExchangeRate()
	want := new(big.Int).Mul(glp.UnitPrice(f.eco), num)
	want.Quo(want, den)
	requireAmount(t, want, price)
	if price.Cmp(glp.UnitPrice(f.eco)) >= 0 {
		t.Fatal("exit fee must discount the price")
	}

	_, err = oracle.GetPrice(f.tokens.FsGLP)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	empty := plutus.NewVault(f.bank, addr(0x40), addr(0x41), f.tokens.FsGLP, plutus.DefaultExitFeeBps)
	price, err = NewPriceOracle(f.eco, empty, f.factory.Address()).GetPrice(f.factory.Address())
	if err != nil {
		t.Fatalf("new price oracle: %v", err)
	}
	want = new(big.Int).Mul(glp.UnitPrice(f.eco), big.NewInt(9_800))
	requireAmount(t, want.Quo(want, big.NewInt(10_000)), price)
}
