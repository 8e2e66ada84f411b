package plvglp

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/gmx"
	"isovault/native/plutus"
)

// Converter swaps USDC for plvGLP by minting GLP and depositing it into the
// Plutus vault, and reverses the route on unwrap.
type Converter struct {
	eco *gmx.Ecosystem
	plv *plutus.Vault
}

func NewConverter(eco *gmx.Ecosystem, plv *plutus.Vault) *Converter {
	return &Converter{eco: eco, plv: plv}
}

// QuoteWrap implements isolation.WrapConverter.
func (c *Converter) QuoteWrap(inputToken common.Address, amount *big.Int) (*big.Int, error) {
	glp, err := c.eco.QuoteMintAndStakeGlp(inputToken, amount)
	if err != nil {
		return nil, err
	}
	return c.plv.PreviewDeposit(glp), nil
}

// Wrap implements isolation.WrapConverter.
func (c *Converter) Wrap(trader, inputToken common.Address, amount *big.Int) (*big.Int, error) {
	glp, err := c.eco.MintAndStakeGlp(trader, inputToken, amount, nil)
	if err != nil {
		return nil, err
	}
	return c.plv.Deposit(trader, glp)
}

// QuoteUnwrap implements isolation.UnwrapConverter. The shares are valued at
// the exit-fee adjusted exchange rate before the GLP redemption is quoted.
func (c *Converter) QuoteUnwrap(outputToken common.Address, amount *big.Int) (*big.Int, error) {
	glp := c.plv.PreviewRedeem(amount)
	if glp.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s plvGLP redeems nothing", plutus.ErrInvalidAmount, amount)
	}
	return c.eco.QuoteUnstakeAndRedeemGlp(outputToken, glp)
}

// Unwrap implements isolation.UnwrapConverter.
func (c *Converter) Unwrap(trader, outputToken common.Address, amount *big.Int) (*big.Int, error) {
	glp, err := c.plv.Redeem(trader, amount, trader)
	if err != nil {
		return nil, err
	}
	return c.eco.UnstakeAndRedeemGlp(trader, outputToken, glp, nil, trader)
}
