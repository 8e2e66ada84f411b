package isolation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	"isovault/native/bank"
	"isovault/native/margin"
)

func addr(fill byte) common.Address {
	var a common.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

// rateConverter pays num/den output per underlying unit and the inverse on
// wraps.
type rateConverter struct {
	bank       *bank.Bank
	underlying common.Address
	num, den   int64
}

func (c *rateConverter) QuoteUnwrap(_ common.Address, amount *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(amount, big.NewInt(c.num))
	return out.Quo(out, big.NewInt(c.den)), nil
}

func (c *rateConverter) Unwrap(trader, outputToken common.Address, amount *big.Int) (*big.Int, error) {
	out, _ := c.QuoteUnwrap(outputToken, amount)
	if err := c.bank.Burn(c.underlying, trader, amount); err != nil {
		return nil, err
	}
	return out, c.bank.Mint(outputToken, trader, out)
}

func (c *rateConverter) QuoteWrap(_ common.Address, amount *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(amount, big.NewInt(c.den))
	return out.Quo(out, big.NewInt(c.num)), nil
}

func (c *rateConverter) Wrap(trader, inputToken common.Address, amount *big.Int) (*big.Int, error) {
	out, _ := c.QuoteWrap(inputToken, amount)
	if err := c.bank.Burn(inputToken, trader, amount); err != nil {
		return nil, err
	}
	return out, c.bank.Mint(c.underlying, trader, out)
}

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
	bank          *bank.Bank
	ledger        *margin.Ledger
	factory       *Factory
	recorder      *recorder
	gov           common.Address
	underlying    common.Address
	usdc          common.Address
	wrappedMarket uint64
	usdcMarket    uint64
	unwrapper     *UnwrapperTrader
	wrapper       *WrapperTrader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := newUninitializedFixture(t)
	if err := f.factory.OwnerInitialize(f.gov, []common.Address{f.unwrapper.Address(), f.wrapper.Address()}); err != nil {
		t.Fatalf("owner initialize: %v", err)
	}
	return f
}

func newUninitializedFixture(t *testing.T) *fixture {
	t.Helper()
	b := bank.New()
	gov := addr(0x01)
	underlying, usdc := addr(0x04), addr(0x05)
	ledger := margin.NewLedger(addr(0x02), gov, b)
	factory := NewFactory(addr(0x03), gov, underlying, TokenVault{}, ledger, b)
	rec := &recorder{}
	factory.SetEmitter(rec)

	oracle := margin.NewFixedPriceOracle()
	oracle.SetPrice(factory.Address(), big.NewInt(1e18))
	oracle.SetPrice(usdc, big.NewInt(1e18))
	wrappedMarket, err := ledger.OwnerAddMarket(gov, factory.Address(), oracle, false)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	usdcMarket, err := ledger.OwnerAddMarket(gov, usdc, oracle, true)
	if err != nil {
		t.Fatalf("owner add market: %v", err)
	}
	if err := ledger.OwnerSetGlobalOperator(gov, factory.Address(), true); err != nil {
		t.Fatalf("owner set global operator: %v", err)
	}

	conv := &rateConverter{bank: b, underlying: underlying, num: 2, den: 1}
	unwrapper := NewUnwrapperTrader(addr(0x06), factory, usdc, conv)
	wrapper := NewWrapperTrader(addr(0x07), factory, usdc, conv)
	unwrapper.SetEmitter(rec)
	wrapper.SetEmitter(rec)
	ledger.RegisterContract(unwrapper.Address(), unwrapper)
	ledger.RegisterContract(wrapper.Address(), wrapper)

	return &fixture{
		bank:          b,
		ledger:        ledger,
		factory:       factory,
		recorder:      rec,
		gov:           gov,
		underlying:    underlying,
		usdc:          usdc,
		wrappedMarket: wrappedMarket,
		usdcMarket:    usdcMarket,
		unwrapper:     unwrapper,
		wrapper:       wrapper,
	}
}

// fundedVault creates owner's vault and deposits amount into account 0.
func (f *fixture) fundedVault(t *testing.T, owner common.Address, amount int64) *Vault {
	t.Helper()
	router, err := f.factory.CreateVault(owner)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	vault := NewVault(router)
	if err := f.bank.Mint(f.underlying, owner, big.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := vault.DepositIntoVaultForLedger(owner, 0, big.NewInt(amount)); err != nil {
		t.Fatalf("deposit into vault for ledger: %v", err)
	}
	return vault
}

func (f *fixture) wei(owner common.Address, number, market uint64) *big.Int {
	return f.ledger.GetAccountWei(margin.AccountInfo{Owner: owner, Number: number}, market)
}

func requireAmount(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("amount mismatch: want %d, got %v", want, got)
	}
}
