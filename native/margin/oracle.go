package margin

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNoPrice = errors.New("ledger: no price for token")

// FixedPriceOracle serves prices set explicitly by an operator.
type FixedPriceOracle struct {
	prices map[common.Address]*big.Int
}

func NewFixedPriceOracle() *FixedPriceOracle {
	return &FixedPriceOracle{prices: make(map[common.Address]*big.Int)}
}

func (o *FixedPriceOracle) SetPrice(token common.Address, price *big.Int) {
	if o == nil || price == nil {
		return
	}
	o.prices[token] = new(big.Int).Set(price)
}

func (o *FixedPriceOracle) GetPrice(token common.Address) (*big.Int, error) {
	if o == nil {
		return nil, fmt.Errorf("%w %s", ErrNoPrice, token.Hex())
	}
	price, ok := o.prices[token]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoPrice, token.Hex())
	}
	return new(big.Int).Set(price), nil
}
