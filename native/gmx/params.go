package gmx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Tokens lists the bank tokens the ecosystem reads and writes.
type Tokens struct {
	GMX   common.Address
	EsGMX common.Address
	WETH  common.Address
	USDC  common.Address
	// FsGLP is the fee-and-staked GLP receipt. Minting GLP always stakes it,
	// so FsGLP doubles as the GLP supply.
	FsGLP common.Address
}

// Addresses are the custody accounts the ecosystem holds tokens under.
type Addresses struct {
	Router    common.Address
	Pool      common.Address
	VesterGlp common.Address
	VesterGmx common.Address
}

// Params configures pool fees, reward emission and vesting.
type Params struct {
	MintFeeBps uint64
	BurnFeeBps uint64
	// Reward rates are paid per second for every 1e18 base units staked.
	WethPerGlpPerSecond  *big.Int
	WethPerGmxPerSecond  *big.Int
	EsGmxPerGlpPerSecond *big.Int
	EsGmxPerGmxPerSecond *big.Int
	// MultiplierPointsAprBps is the yearly multiplier point accrual on staked
	// GMX and esGMX.
	MultiplierPointsAprBps uint64
	VestingDurationSeconds int64
	// USDCPrice is the USD price of one whole USDC with 30 decimals.
	USDCPrice    *big.Int
	USDCDecimals uint8
}

// DefaultParams mirrors the fee levels and emission shape of the live system.
func DefaultParams() Params {
	return Params{
		MintFeeBps:             25,
		BurnFeeBps:             30,
		WethPerGlpPerSecond:    big.NewInt(600_000_000),
		WethPerGmxPerSecond:    big.NewInt(900_000_000),
		EsGmxPerGlpPerSecond:   big.NewInt(1_000_000_000),
		EsGmxPerGmxPerSecond:   big.NewInt(2_000_000_000),
		MultiplierPointsAprBps: 10_000,
		VestingDurationSeconds: 365 * 24 * 60 * 60,
		USDCPrice:              new(big.Int).Set(pricePrecision),
		USDCDecimals:           6,
	}
}

func (p Params) clone() Params {
	out := p
	out.WethPerGlpPerSecond = clone(p.WethPerGlpPerSecond)
	out.WethPerGmxPerSecond = clone(p.WethPerGmxPerSecond)
	out.EsGmxPerGlpPerSecond = clone(p.EsGmxPerGlpPerSecond)
	out.EsGmxPerGmxPerSecond = clone(p.EsGmxPerGmxPerSecond)
	out.USDCPrice = clone(p.USDCPrice)
	return out
}

// Track selects one of the two reward and vesting tracks.
type Track uint8

const (
	// TrackGlp earns on staked GLP and vests against paired fsGLP.
	TrackGlp Track = iota
	// TrackGmx earns on staked GMX and esGMX and vests against paired sbfGMX.
	TrackGmx
)

func (t Track) String() string {
	if t == TrackGlp {
		return "glp"
	}
	return "gmx"
}

// RewardOptions selects what HandleRewards claims and restakes.
type RewardOptions struct {
	ClaimGmx              bool
	StakeGmx              bool
	ClaimEsGmx            bool
	StakeEsGmx            bool
	StakeMultiplierPoints bool
	ClaimWeth             bool
}

// RewardResult reports the amounts HandleRewards moved.
type RewardResult struct {
	Gmx              *big.Int
	EsGmx            *big.Int
	Weth             *big.Int
	MultiplierPoints *big.Int
}

// VestingWithdrawal reports what a vester returned on withdrawal.
type VestingWithdrawal struct {
	Gmx   *big.Int
	EsGmx *big.Int
	Pair  *big.Int
}
