package gmx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StakeGmx moves amount of GMX from account into the staking router.
func (e *Ecosystem) StakeGmx(account common.Address, amount *big.Int) error {
	return e.stake(account, e.tokens.GMX, amount)
}

// StakeEsGmx moves amount of esGMX from account into the staking router.
func (e *Ecosystem) StakeEsGmx(account common.Address, amount *big.Int) error {
	return e.stake(account, e.tokens.EsGMX, amount)
}

// UnstakeGmx returns amount of staked GMX to account, burning a pro-rata share
// of multiplier points.
func (e *Ecosystem) UnstakeGmx(account common.Address, amount *big.Int) error {
	return e.unstake(account, e.tokens.GMX, amount)
}

// UnstakeEsGmx returns amount of staked esGMX to account.
func (e *Ecosystem) UnstakeEsGmx(account common.Address, amount *big.Int) error {
	return e.unstake(account, e.tokens.EsGMX, amount)
}

func (e *Ecosystem) stake(account, token common.Address, amount *big.Int) error {
	if e.bank == nil {
		return errNilBank
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	p := e.update(account)
	if err := e.bank.Transfer(token, account, e.addresses.Router, amount); err != nil {
		return err
	}
	if token == e.tokens.GMX {
		p.stakedGmx.Add(p.stakedGmx, amount)
	} else {
		p.stakedEsGmx.Add(p.stakedEsGmx, amount)
	}
	return nil
}

func (e *Ecosystem) unstake(account, token common.Address, amount *big.Int) error {
	if e.bank == nil {
		return errNilBank
	}
	if err := requirePositive(amount); err != nil {
		return err
	}
	p := e.update(account)
	deposited := p.stakedEsGmx
	if token == e.tokens.GMX {
		deposited = p.stakedGmx
	}
	if deposited.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s staked, requested %s", ErrInsufficientStake, account.Hex(), deposited, token.Hex(), amount)
	}
	base := add(p.stakedGmx, p.stakedEsGmx)
	mpBurn := mulDiv(p.stakedMp, amount, base)
	remaining := add(base, p.stakedMp)
	remaining.Sub(remaining, amount)
	remaining.Sub(remaining, mpBurn)
	if paired := e.PairAmount(TrackGmx, account); remaining.Cmp(paired) < 0 {
		return fmt.Errorf("%w: %s pairs %s sbfGMX", ErrPairedStake, account.Hex(), paired)
	}
	deposited.Sub(deposited, amount)
	p.stakedMp.Sub(p.stakedMp, mpBurn)
	return e.bank.Transfer(token, e.addresses.Router, account, amount)
}

// HandleRewards claims and optionally restakes the rewards accrued by account.
func (e *Ecosystem) HandleRewards(account common.Address, opts RewardOptions) (RewardResult, error) {
	res := RewardResult{Gmx: big.NewInt(0), EsGmx: big.NewInt(0), Weth: big.NewInt(0), MultiplierPoints: big.NewInt(0)}
	if e.bank == nil {
		return res, errNilBank
	}
	p := e.update(account)

	if opts.ClaimGmx {
		for _, track := range []Track{TrackGmx, TrackGlp} {
			claimed, err := e.claimVested(track, account)
			if err != nil {
				return res, err
			}
			res.Gmx.Add(res.Gmx, claimed)
		}
		if opts.StakeGmx && res.Gmx.Sign() > 0 {
			if err := e.stake(account, e.tokens.GMX, res.Gmx); err != nil {
				return res, err
			}
		}
	}

	if opts.ClaimEsGmx {
		for i := range p.rewards {
			res.EsGmx.Add(res.EsGmx, p.rewards[i].claimableEsGmx)
			p.rewards[i].claimableEsGmx = big.NewInt(0)
		}
		if err := e.bank.Mint(e.tokens.EsGMX, account, res.EsGmx); err != nil {
			return res, err
		}
		if opts.StakeEsGmx && res.EsGmx.Sign() > 0 {
			if err := e.stake(account, e.tokens.EsGMX, res.EsGmx); err != nil {
				return res, err
			}
		}
	}

	if opts.StakeMultiplierPoints {
		res.MultiplierPoints.Set(p.claimableMp)
		p.stakedMp.Add(p.stakedMp, p.claimableMp)
		p.claimableMp = big.NewInt(0)
	}

	if opts.ClaimWeth {
		for i := range p.rewards {
			res.Weth.Add(res.Weth, p.rewards[i].claimableWeth)
			p.rewards[i].claimableWeth = big.NewInt(0)
		}
		if err := e.bank.Mint(e.tokens.WETH, account, res.Weth); err != nil {
			return res, err
		}
	}
	return res, nil
}

// compound claims and stakes esGMX and multiplier points for account.
func (e *Ecosystem) compound(account common.Address) error {
	_, err := e.HandleRewards(account, RewardOptions{ClaimEsGmx: true, StakeEsGmx: true, StakeMultiplierPoints: true})
	return err
}

// DepositBalance returns the amount of token (GMX or esGMX) account has
// staked.
func (e *Ecosystem) DepositBalance(account, token common.Address) *big.Int {
	p, ok := e.positions[account]
	if !ok {
		return big.NewInt(0)
	}
	switch token {
	case e.tokens.GMX:
		return clone(p.stakedGmx)
	case e.tokens.EsGMX:
		return clone(p.stakedEsGmx)
	default:
		return big.NewInt(0)
	}
}

// SbfGmxBalance returns account's staked GMX, esGMX and multiplier points that
// are not paired in the GMX vester.
func (e *Ecosystem) SbfGmxBalance(account common.Address) *big.Int {
	p, ok := e.positions[account]
	if !ok {
		return big.NewInt(0)
	}
	total := add(add(p.stakedGmx, p.stakedEsGmx), p.stakedMp)
	return total.Sub(total, e.PairAmount(TrackGmx, account))
}

// StakedMultiplierPoints returns the multiplier points account has staked.
func (e *Ecosystem) StakedMultiplierPoints(account common.Address) *big.Int {
	if p, ok := e.positions[account]; ok {
		return clone(p.stakedMp)
	}
	return big.NewInt(0)
}

// ClaimableWeth returns the WETH account could claim now across both tracks.
func (e *Ecosystem) ClaimableWeth(account common.Address) *big.Int {
	p := e.preview(account)
	return add(p.rewards[TrackGlp].claimableWeth, p.rewards[TrackGmx].claimableWeth)
}

// ClaimableEsGmx returns the esGMX account could claim now across both tracks.
func (e *Ecosystem) ClaimableEsGmx(account common.Address) *big.Int {
	p := e.preview(account)
	return add(p.rewards[TrackGlp].claimableEsGmx, p.rewards[TrackGmx].claimableEsGmx)
}
