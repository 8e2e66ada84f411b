package glp

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/gmx"
)

// Converter moves between USDC and fsGLP through the GMX pool. It serves both
// the wrapper and the unwrapper trader; the trader's address is the pool
// account that pays and receives.
type Converter struct {
	eco *gmx.Ecosystem
}

func NewConverter(eco *gmx.Ecosystem) *Converter { return &Converter{eco: eco} }

// QuoteWrap implements isolation.WrapConverter.
func (c *Converter) QuoteWrap(inputToken common.Address, amount *big.Int) (*big.Int, error) {
	return c.eco.QuoteMintAndStakeGlp(inputToken, amount)
}

// Wrap implements isolation.WrapConverter.
func (c *Converter) Wrap(trader, inputToken common.Address, amount *big.Int) (*big.Int, error) {
	return c.eco.MintAndStakeGlp(trader, inputToken, amount, nil)
}

// QuoteUnwrap implements isolation.UnwrapConverter.
func (c *Converter) QuoteUnwrap(outputToken common.Address, amount *big.Int) (*big.Int, error) {
	return c.eco.QuoteUnstakeAndRedeemGlp(outputToken, amount)
}

// Unwrap implements isolation.UnwrapConverter.
func (c *Converter) Unwrap(trader, outputToken common.Address, amount *big.Int) (*big.Int, error) {
	return c.eco.UnstakeAndRedeemGlp(trader, outputToken, amount, nil, trader)
}
