package gmx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Ecosystem) vesterAddress(track Track) common.Address {
	if track == TrackGlp {
		return e.addresses.VesterGlp
	}
	return e.addresses.VesterGmx
}

// updateVesting converts the linearly vested share of the escrowed esGMX into
// claimable GMX.
func (e *Ecosystem) updateVesting(track Track, account common.Address) error {
	v := e.vesting(track, account)
	now := e.now()
	if v.balance.Sign() == 0 {
		v.lastVestingTime = now
		return nil
	}
	vested := vestedSince(v, now, e.params.VestingDurationSeconds)
	v.lastVestingTime = now
	if vested.Sign() == 0 {
		return nil
	}
	if err := e.bank.Burn(e.tokens.EsGMX, e.vesterAddress(track), vested); err != nil {
		return err
	}
	v.balance.Sub(v.balance, vested)
	v.cumulativeClaim.Add(v.cumulativeClaim, vested)
	v.claimable.Add(v.claimable, vested)
	return nil
}

func vestedSince(v *vesting, now, duration int64) *big.Int {
	elapsed := now - v.lastVestingTime
	if elapsed <= 0 || duration <= 0 {
		return big.NewInt(0)
	}
	total := add(v.balance, v.cumulativeClaim)
	next := mulDiv(total, big.NewInt(elapsed), big.NewInt(duration))
	if next.Cmp(v.balance) > 0 {
		next.Set(v.balance)
	}
	return next
}

// claimVested pays out the GMX matured on track to account.
func (e *Ecosystem) claimVested(track Track, account common.Address) (*big.Int, error) {
	if _, ok := e.vestings[track][account]; !ok {
		return big.NewInt(0), nil
	}
	if err := e.updateVesting(track, account); err != nil {
		return nil, err
	}
	v := e.vesting(track, account)
	amount := clone(v.claimable)
	v.claimable = big.NewInt(0)
	if err := e.bank.Mint(e.tokens.GMX, account, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// Vest escrows esAmount of account's esGMX on track, pairing the staked
// amount the track requires.
func (e *Ecosystem) Vest(track Track, account common.Address, esAmount *big.Int) error {
	if e.bank == nil {
		return errNilBank
	}
	if err := requirePositive(esAmount); err != nil {
		return err
	}
	p := e.update(account)
	if err := e.updateVesting(track, account); err != nil {
		return err
	}
	v := e.vesting(track, account)
	totalVested := add(add(v.balance, v.cumulativeClaim), esAmount)
	maxVestable := p.rewards[track].cumulativeEsGmx
	if totalVested.Cmp(maxVestable) > 0 {
		return fmt.Errorf("%w: %s on %s track, max %s", ErrMaxVestableExceeded, totalVested, track, maxVestable)
	}
	nextPair := e.pairFor(p, track, totalVested)
	pairDiff := sub(nextPair, v.pairAmount)
	if pairDiff.Sign() > 0 {
		switch track {
		case TrackGlp:
			if err := e.bank.Transfer(e.tokens.FsGLP, account, e.addresses.VesterGlp, pairDiff); err != nil {
				return err
			}
		case TrackGmx:
			if available := e.SbfGmxBalance(account); available.Cmp(pairDiff) < 0 {
				return fmt.Errorf("%w: %s needs %s sbfGMX, has %s", ErrPairedStake, account.Hex(), pairDiff, available)
			}
		}
		v.pairAmount = nextPair
	}
	if err := e.bank.Transfer(e.tokens.EsGMX, account, e.vesterAddress(track), esAmount); err != nil {
		return err
	}
	v.balance.Add(v.balance, esAmount)
	return nil
}

// WithdrawVesting claims matured GMX to account, then returns the unvested
// esGMX and the paired stake on track.
func (e *Ecosystem) WithdrawVesting(track Track, account common.Address) (VestingWithdrawal, error) {
	out := VestingWithdrawal{Gmx: big.NewInt(0), EsGmx: big.NewInt(0), Pair: big.NewInt(0)}
	if e.bank == nil {
		return out, errNilBank
	}
	e.update(account)
	if err := e.updateVesting(track, account); err != nil {
		return out, err
	}
	v := e.vesting(track, account)
	if add(v.balance, v.cumulativeClaim).Sign() == 0 {
		return out, fmt.Errorf("%w: %s on %s track", ErrNothingVested, account.Hex(), track)
	}
	claimed, err := e.claimVested(track, account)
	if err != nil {
		return out, err
	}
	out.Gmx = claimed
	out.EsGmx = clone(v.balance)
	out.Pair = clone(v.pairAmount)

	if track == TrackGlp && out.Pair.Sign() > 0 {
		if err := e.bank.Transfer(e.tokens.FsGLP, e.addresses.VesterGlp, account, out.Pair); err != nil {
			return out, err
		}
	}
	if err := e.bank.Transfer(e.tokens.EsGMX, e.vesterAddress(track), account, out.EsGmx); err != nil {
		return out, err
	}
	delete(e.vestings[track], account)
	return out, nil
}

func (e *Ecosystem) pairFor(p *position, track Track, esAmount *big.Int) *big.Int {
	r := p.rewards[track]
	return mulDiv(esAmount, r.averageStaked, r.cumulativeEsGmx)
}

// PairAmountNeeded returns the additional stake account must pair to vest
// esAmount more on track.
func (e *Ecosystem) PairAmountNeeded(track Track, account common.Address, esAmount *big.Int) *big.Int {
	p := e.preview(account)
	current := big.NewInt(0)
	totalVested := clone(esAmount)
	if v, ok := e.vestings[track][account]; ok {
		current = v.pairAmount
		totalVested.Add(totalVested, v.balance)
		totalVested.Add(totalVested, v.cumulativeClaim)
	}
	need := sub(e.pairFor(p, track, totalVested), current)
	if need.Sign() < 0 {
		return big.NewInt(0)
	}
	return need
}

// MaxVestableAmount returns the esGMX account may vest on track.
func (e *Ecosystem) MaxVestableAmount(track Track, account common.Address) *big.Int {
	return clone(e.preview(account).rewards[track].cumulativeEsGmx)
}

// PairAmount returns the stake account has paired on track.
func (e *Ecosystem) PairAmount(track Track, account common.Address) *big.Int {
	if v, ok := e.vestings[track][account]; ok {
		return clone(v.pairAmount)
	}
	return big.NewInt(0)
}

// VestingBalance returns account's esGMX still escrowed on track.
func (e *Ecosystem) VestingBalance(track Track, account common.Address) *big.Int {
	v, ok := e.vestings[track][account]
	if !ok {
		return big.NewInt(0)
	}
	return sub(v.balance, vestedSince(v, e.now(), e.params.VestingDurationSeconds))
}

// ClaimableVested returns the GMX account could claim from track now.
func (e *Ecosystem) ClaimableVested(track Track, account common.Address) *big.Int {
	v, ok := e.vestings[track][account]
	if !ok {
		return big.NewInt(0)
	}
	return add(v.claimable, vestedSince(v, e.now(), e.params.VestingDurationSeconds))
}
