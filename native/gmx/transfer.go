package gmx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SignalTransfer records that sender intends to move its full position to
// receiver.
func (e *Ecosystem) SignalTransfer(sender, receiver common.Address) error {
	for _, track := range []Track{TrackGlp, TrackGmx} {
		if e.VestingBalance(track, sender).Sign() > 0 {
			return fmt.Errorf("%w: %s on %s track", ErrSenderHasVesting, sender.Hex(), track)
		}
	}
	if err := e.validateReceiver(receiver); err != nil {
		return err
	}
	e.pending[sender] = receiver
	return nil
}

// PendingReceiver returns the receiver sender has signalled, if any.
func (e *Ecosystem) PendingReceiver(sender common.Address) (common.Address, bool) {
	r, ok := e.pending[sender]
	return r, ok
}

// AcceptTransfer moves sender's staked GMX, esGMX, multiplier points, idle
// esGMX, fsGLP and vesting eligibility to receiver. Accrued WETH stays
// claimable by sender.
func (e *Ecosystem) AcceptTransfer(receiver, sender common.Address) error {
	if e.bank == nil {
		return errNilBank
	}
	if signalled, ok := e.pending[sender]; !ok || signalled != receiver {
		return fmt.Errorf("%w: %s to %s", ErrTransferNotSignalled, sender.Hex(), receiver.Hex())
	}
	if err := e.validateReceiver(receiver); err != nil {
		return err
	}
	delete(e.pending, sender)

	if err := e.compound(sender); err != nil {
		return err
	}
	from := e.update(sender)
	to := e.update(receiver)

	to.stakedGmx, from.stakedGmx = from.stakedGmx, big.NewInt(0)
	to.stakedEsGmx, from.stakedEsGmx = from.stakedEsGmx, big.NewInt(0)
	to.stakedMp, from.stakedMp = from.stakedMp, big.NewInt(0)
	to.claimableMp, from.claimableMp = from.claimableMp, big.NewInt(0)
	for i := range from.rewards {
		to.rewards[i].cumulativeEsGmx, from.rewards[i].cumulativeEsGmx = from.rewards[i].cumulativeEsGmx, big.NewInt(0)
		to.rewards[i].averageStaked, from.rewards[i].averageStaked = from.rewards[i].averageStaked, big.NewInt(0)
	}
	if err := e.bank.Transfer(e.tokens.EsGMX, sender, receiver, e.bank.BalanceOf(e.tokens.EsGMX, sender)); err != nil {
		return err
	}
	return e.bank.Transfer(e.tokens.FsGLP, sender, receiver, e.bank.BalanceOf(e.tokens.FsGLP, sender))
}

// validateReceiver rejects receivers that already hold a position.
func (e *Ecosystem) validateReceiver(receiver common.Address) error {
	if e.bank.BalanceOf(e.tokens.FsGLP, receiver).Sign() > 0 {
		return fmt.Errorf("%w: %s holds fsGLP", ErrReceiverHasPosition, receiver.Hex())
	}
	if p, ok := e.positions[receiver]; ok {
		busy := p.stakedGmx.Sign() > 0 || p.stakedEsGmx.Sign() > 0 || p.stakedMp.Sign() > 0
		for i := range p.rewards {
			busy = busy || p.rewards[i].cumulativeEsGmx.Sign() > 0
		}
		if busy {
			return fmt.Errorf("%w: %s has staked or earned rewards", ErrReceiverHasPosition, receiver.Hex())
		}
	}
	for _, track := range []Track{TrackGlp, TrackGmx} {
		if v, ok := e.vestings[track][receiver]; ok && add(v.balance, v.cumulativeClaim).Sign() > 0 {
			return fmt.Errorf("%w: %s is vesting on %s track", ErrReceiverHasPosition, receiver.Hex(), track)
		}
	}
	return nil
}
