package glp

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/gmx"
)

var ErrInvalidToken = errors.New("glp: invalid token")

var (
	basisPoints = big.NewInt(10_000)
	// gmx prices carry 30 decimals per whole token; the ledger expects
	// 36 - 18 decimals per base unit of an 18 decimal token.
	priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)
)

// PriceOracle prices the wrapped GLP token at the pool's redemption value: the
// GLP price net of the burn fee the unwrapper would pay.
type PriceOracle struct {
	eco     *gmx.Ecosystem
	wrapped common.Address
}

func NewPriceOracle(eco *gmx.Ecosystem, wrapped common.Address) *PriceOracle {
	return &PriceOracle{eco: eco, wrapped: wrapped}
}

// GetPrice implements margin.PriceOracle.
func (o *PriceOracle) GetPrice(token common.Address) (*big.Int, error) {
	if token != o.wrapped {
		return nil, fmt.Errorf("%w: %s is not the wrapped GLP token", ErrInvalidToken, token.Hex())
	}
	return UnitPrice(o.eco), nil
}

// UnitPrice is the fee-discounted price of one fsGLP base unit in ledger
// precision.
func UnitPrice(eco *gmx.Ecosystem) *big.Int {
	price := new(big.Int).Mul(eco.GlpPrice(), new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(eco.BurnFeeBps())))
	price.Quo(price, basisPoints)
	return price.Quo(price, priceScale)
}
