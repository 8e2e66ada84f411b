package gmx

import "math/big"

var (
	basisPoints     = big.NewInt(10_000)
	rewardPrecision = mustBigInt("1000000000000000000")             // 1e18
	pricePrecision  = mustBigInt("1000000000000000000000000000000") // 1e30
	secondsPerYear  = big.NewInt(365 * 24 * 60 * 60)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv returns a*b/c rounded down. A zero divisor yields zero.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func add(a, b *big.Int) *big.Int { return new(big.Int).Add(clone(a), clone(b)) }

func sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(clone(a), clone(b)) }

func isPositive(v *big.Int) bool { return v != nil && v.Sign() > 0 }
