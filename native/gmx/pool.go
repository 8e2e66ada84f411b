package gmx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var usdgPrecision = rewardPrecision

// SeedPool deposits initial liquidity so the pool can quote and redeem. The
// USDC is minted into the pool and the GLP minted to holder at one dollar per
// GLP.
func (e *Ecosystem) SeedPool(holder common.Address, usdcAmount *big.Int) (*big.Int, error) {
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := requirePositive(usdcAmount); err != nil {
		return nil, err
	}
	usdg := e.usdcToUsdg(usdcAmount)
	if err := e.bank.Mint(e.tokens.USDC, e.addresses.Pool, usdcAmount); err != nil {
		return nil, err
	}
	e.update(holder)
	glp := usdg
	supply := e.bank.TotalSupply(e.tokens.FsGLP)
	if supply.Sign() > 0 {
		glp = mulDiv(usdg, supply, e.aumUsdg)
	}
	if err := e.bank.Mint(e.tokens.FsGLP, holder, glp); err != nil {
		return nil, err
	}
	e.aumUsdg.Add(e.aumUsdg, usdg)
	return glp, nil
}

// AumInUsdg returns the pool's assets under management in USDG base units.
func (e *Ecosystem) AumInUsdg() *big.Int { return clone(e.aumUsdg) }

// GlpPrice returns the USD price of one whole GLP with 30 decimals.
func (e *Ecosystem) GlpPrice() *big.Int {
	supply := e.bank.TotalSupply(e.tokens.FsGLP)
	if supply.Sign() == 0 {
		return new(big.Int).Set(pricePrecision)
	}
	return mulDiv(e.aumUsdg, pricePrecision, supply)
}

// MintFeeBps and BurnFeeBps expose the pool's conversion fees.
func (e *Ecosystem) MintFeeBps() uint64 { return e.params.MintFeeBps }
func (e *Ecosystem) BurnFeeBps() uint64 { return e.params.BurnFeeBps }

func (e *Ecosystem) usdcToUsdg(amount *big.Int) *big.Int {
	usd := mulDiv(amount, e.params.USDCPrice, pow10(e.params.USDCDecimals))
	return mulDiv(usd, usdgPrecision, pricePrecision)
}

func (e *Ecosystem) usdgToUsdc(usdg *big.Int) *big.Int {
	usd := mulDiv(usdg, pricePrecision, usdgPrecision)
	return mulDiv(usd, pow10(e.params.USDCDecimals), e.params.USDCPrice)
}

// QuoteMintAndStakeGlp returns the fsGLP minted for amount of token.
func (e *Ecosystem) QuoteMintAndStakeGlp(token common.Address, amount *big.Int) (*big.Int, error) {
	glp, _, err := e.quoteMint(token, amount)
	return glp, err
}

func (e *Ecosystem) quoteMint(token common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	if token != e.tokens.USDC {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidToken, token.Hex())
	}
	if err := requirePositive(amount); err != nil {
		return nil, nil, err
	}
	usdg := e.usdcToUsdg(amount)
	usdg = mulDiv(usdg, new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(e.params.MintFeeBps)), basisPoints)
	supply := e.bank.TotalSupply(e.tokens.FsGLP)
	if supply.Sign() == 0 || e.aumUsdg.Sign() == 0 {
		return usdg, usdg, nil
	}
	return mulDiv(usdg, supply, e.aumUsdg), usdg, nil
}

// MintAndStakeGlp swaps amount of token from account into the pool and stakes
// the minted GLP for account.
func (e *Ecosystem) MintAndStakeGlp(account, token common.Address, amount, minGlp *big.Int) (*big.Int, error) {
	if e.bank == nil {
		return nil, errNilBank
	}
	glp, usdg, err := e.quoteMint(token, amount)
	if err != nil {
		return nil, err
	}
	if minGlp != nil && glp.Cmp(minGlp) < 0 {
		return nil, fmt.Errorf("%w: %s glp below minimum %s", ErrInsufficientOutput, glp, minGlp)
	}
	if err := e.bank.Transfer(token, account, e.addresses.Pool, amount); err != nil {
		return nil, err
	}
	e.update(account)
	if err := e.bank.Mint(e.tokens.FsGLP, account, glp); err != nil {
		return nil, err
	}
	e.aumUsdg.Add(e.aumUsdg, usdg)
	return glp, nil
}

// QuoteUnstakeAndRedeemGlp returns the amount of tokenOut paid for glpAmount.
func (e *Ecosystem) QuoteUnstakeAndRedeemGlp(tokenOut common.Address, glpAmount *big.Int) (*big.Int, error) {
	out, _, err := e.quoteRedeem(tokenOut, glpAmount)
	return out, err
}

func (e *Ecosystem) quoteRedeem(tokenOut common.Address, glpAmount *big.Int) (*big.Int, *big.Int, error) {
	if tokenOut != e.tokens.USDC {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidToken, tokenOut.Hex())
	}
	if err := requirePositive(glpAmount); err != nil {
		return nil, nil, err
	}
	supply := e.bank.TotalSupply(e.tokens.FsGLP)
	usdg := mulDiv(glpAmount, e.aumUsdg, supply)
	net := mulDiv(usdg, new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(e.params.BurnFeeBps)), basisPoints)
	return e.usdgToUsdc(net), net, nil
}

// UnstakeAndRedeemGlp burns glpAmount of account's fsGLP and pays tokenOut to
// receiver.
func (e *Ecosystem) UnstakeAndRedeemGlp(account, tokenOut common.Address, glpAmount, minOut *big.Int, receiver common.Address) (*big.Int, error) {
	if e.bank == nil {
		return nil, errNilBank
	}
	out, net, err := e.quoteRedeem(tokenOut, glpAmount)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientOutput, out, minOut)
	}
	e.update(account)
	if err := e.bank.Burn(e.tokens.FsGLP, account, glpAmount); err != nil {
		return nil, err
	}
	e.aumUsdg.Sub(e.aumUsdg, net)
	if err := e.bank.Transfer(tokenOut, e.addresses.Pool, receiver, out); err != nil {
		return nil, err
	}
	return out, nil
}
