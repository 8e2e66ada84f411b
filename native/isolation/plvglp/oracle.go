package plvglp

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/gmx"
	"isovault/native/isolation/glp"
	"isovault/native/plutus"
)

var ErrInvalidToken = errors.New("plvglp: invalid token")

var basisPoints = big.NewInt(10_000)

// PriceOracle prices the wrapped plvGLP token as the GLP it redeems for,
// after the Plutus exit fee, at the GLP redemption price.
type PriceOracle struct {
	eco     *gmx.Ecosystem
	plv     *plutus.Vault
	wrapped common.Address
}

func NewPriceOracle(eco *gmx.Ecosystem, plv *plutus.Vault, wrapped common.Address) *PriceOracle {
	return &PriceOracle{eco: eco, plv: plv, wrapped: wrapped}
}

// GetPrice implements margin.PriceOracle.
func (o *PriceOracle) GetPrice(token common.Address) (*big.Int, error) {
	if token != o.wrapped {
		return nil, fmt.Errorf("%w: %s is not the wrapped plvGLP token", ErrInvalidToken, token.Hex())
	}
	num, den := o.plv.ExchangeRate()
	if den.Sign() == 0 {
		num = new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(o.plv.ExitFeeBps()))
		den = basisPoints
	}
	price := new(big.Int).Mul(glp.UnitPrice(o.eco), num)
	return price.Quo(price, den), nil
}
