package gmx

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/bank"
)

var (
	ErrInvalidAmount        = errors.New("gmx: invalid amount")
	ErrInvalidToken         = errors.New("gmx: invalid token")
	ErrInsufficientStake    = errors.New("gmx: amount exceeds deposit balance")
	ErrPairedStake          = errors.New("gmx: staked balance is paired in vesting")
	ErrMaxVestableExceeded  = errors.New("gmx: max vestable amount exceeded")
	ErrNothingVested        = errors.New("gmx: vested amount is zero")
	ErrTransferNotSignalled = errors.New("gmx: transfer not signalled")
	ErrReceiverHasPosition  = errors.New("gmx: receiver has existing position")
	ErrSenderHasVesting     = errors.New("gmx: sender has vested tokens")
	ErrInsufficientOutput   = errors.New("gmx: insufficient output")
	errNilBank              = errors.New("gmx: bank not configured")
)

type trackRewards struct {
	claimableWeth   *big.Int
	claimableEsGmx  *big.Int
	cumulativeEsGmx *big.Int
	averageStaked   *big.Int
}

func (r trackRewards) clone() trackRewards {
	return trackRewards{
		claimableWeth:   clone(r.claimableWeth),
		claimableEsGmx:  clone(r.claimableEsGmx),
		cumulativeEsGmx: clone(r.cumulativeEsGmx),
		averageStaked:   clone(r.averageStaked),
	}
}

type position struct {
	stakedGmx   *big.Int
	stakedEsGmx *big.Int
	stakedMp    *big.Int
	claimableMp *big.Int
	lastUpdate  int64
	rewards     [2]trackRewards
}

func (p *position) clone() *position {
	return &position{
		stakedGmx:   clone(p.stakedGmx),
		stakedEsGmx: clone(p.stakedEsGmx),
		stakedMp:    clone(p.stakedMp),
		claimableMp: clone(p.claimableMp),
		lastUpdate:  p.lastUpdate,
		rewards:     [2]trackRewards{p.rewards[0].clone(), p.rewards[1].clone()},
	}
}

type vesting struct {
	balance         *big.Int
	cumulativeClaim *big.Int
	claimable       *big.Int
	pairAmount      *big.Int
	lastVestingTime int64
}

func (v *vesting) clone() *vesting {
	return &vesting{
		balance:         clone(v.balance),
		cumulativeClaim: clone(v.cumulativeClaim),
		claimable:       clone(v.claimable),
		pairAmount:      clone(v.pairAmount),
		lastVestingTime: v.lastVestingTime,
	}
}

// Ecosystem simulates the GLP pool, the staking router, the reward trackers
// and both vesters. Every entry point takes the acting account explicitly.
type Ecosystem struct {
	bank      *bank.Bank
	tokens    Tokens
	addresses Addresses
	params    Params
	nowFn     func() int64

	aumUsdg   *big.Int
	positions map[common.Address]*position
	vestings  [2]map[common.Address]*vesting
	pending   map[common.Address]common.Address
}

// NewEcosystem wires the simulation to b and installs the fsGLP transfer hook
// that settles GLP rewards before balances move.
func NewEcosystem(b *bank.Bank, tokens Tokens, addresses Addresses, params Params) *Ecosystem {
	e := &Ecosystem{
		bank:      b,
		tokens:    tokens,
		addresses: addresses,
		params:    params.clone(),
		nowFn:     func() int64 { return time.Now().Unix() },
		aumUsdg:   big.NewInt(0),
		positions: make(map[common.Address]*position),
		vestings: [2]map[common.Address]*vesting{
			make(map[common.Address]*vesting),
			make(map[common.Address]*vesting),
		},
		pending: make(map[common.Address]common.Address),
	}
	if b != nil {
		b.SetTransferHook(tokens.FsGLP, fsGlpHook{e})
	}
	return e
}

// SetNowFunc overrides the clock. Primarily intended for tests.
func (e *Ecosystem) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Ecosystem) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Ecosystem) Tokens() Tokens       { return e.tokens }
func (e *Ecosystem) Addresses() Addresses { return e.addresses }
func (e *Ecosystem) Params() Params       { return e.params.clone() }

// Checkpoint implements common.Journaled.
func (e *Ecosystem) Checkpoint() func() {
	aum := clone(e.aumUsdg)
	positions := make(map[common.Address]*position, len(e.positions))
	for addr, p := range e.positions {
		positions[addr] = p.clone()
	}
	var vestings [2]map[common.Address]*vesting
	for i := range e.vestings {
		vestings[i] = make(map[common.Address]*vesting, len(e.vestings[i]))
		for addr, v := range e.vestings[i] {
			vestings[i][addr] = v.clone()
		}
	}
	pending := make(map[common.Address]common.Address, len(e.pending))
	for k, v := range e.pending {
		pending[k] = v
	}
	return func() {
		e.aumUsdg = aum
		e.positions = positions
		e.vestings = vestings
		e.pending = pending
	}
}

func (e *Ecosystem) position(addr common.Address) *position {
	p, ok := e.positions[addr]
	if !ok {
		p = e.emptyPosition()
		e.positions[addr] = p
	}
	return p
}

func (e *Ecosystem) vesting(track Track, addr common.Address) *vesting {
	v, ok := e.vestings[track][addr]
	if !ok {
		v = &vesting{
			balance:         big.NewInt(0),
			cumulativeClaim: big.NewInt(0),
			claimable:       big.NewInt(0),
			pairAmount:      big.NewInt(0),
			lastVestingTime: e.now(),
		}
		e.vestings[track][addr] = v
	}
	return v
}

// glpStake is the GLP amount earning rewards for addr, including fsGLP paired
// in the GLP vester.
func (e *Ecosystem) glpStake(addr common.Address) *big.Int {
	held := e.bank.BalanceOf(e.tokens.FsGLP, addr)
	if v, ok := e.vestings[TrackGlp][addr]; ok {
		held.Add(held, v.pairAmount)
	}
	return held
}

// accrue settles rewards for p up to now given the stakes that applied since
// the last update.
func (e *Ecosystem) accrue(p *position, glpStaked *big.Int) {
	now := e.now()
	if now <= p.lastUpdate {
		return
	}
	dt := big.NewInt(now - p.lastUpdate)
	p.lastUpdate = now

	gmxBase := add(p.stakedGmx, p.stakedEsGmx)
	feeBase := add(gmxBase, p.stakedMp)
	accrueTrack(&p.rewards[TrackGlp], glpStaked, glpStaked, e.params.WethPerGlpPerSecond, e.params.EsGmxPerGlpPerSecond, dt)
	accrueTrack(&p.rewards[TrackGmx], feeBase, gmxBase, e.params.WethPerGmxPerSecond, e.params.EsGmxPerGmxPerSecond, dt)

	mp := new(big.Int).Mul(gmxBase, new(big.Int).SetUint64(e.params.MultiplierPointsAprBps))
	mp.Mul(mp, dt)
	mp.Quo(mp, new(big.Int).Mul(basisPoints, secondsPerYear))
	p.claimableMp.Add(p.claimableMp, mp)
}

func accrueTrack(r *trackRewards, feeBase, esBase, wethRate, esRate, dt *big.Int) {
	weth := mulDiv(new(big.Int).Mul(feeBase, clone(wethRate)), dt, rewardPrecision)
	r.claimableWeth.Add(r.claimableWeth, weth)

	es := mulDiv(new(big.Int).Mul(esBase, clone(esRate)), dt, rewardPrecision)
	if es.Sign() == 0 || esBase.Sign() == 0 {
		return
	}
	next := add(r.cumulativeEsGmx, es)
	avg := mulDiv(r.averageStaked, r.cumulativeEsGmx, next)
	avg.Add(avg, mulDiv(esBase, es, next))
	r.averageStaked = avg
	r.cumulativeEsGmx = next
	r.claimableEsGmx.Add(r.claimableEsGmx, es)
}

func (e *Ecosystem) update(addr common.Address) *position {
	p := e.position(addr)
	e.accrue(p, e.glpStake(addr))
	return p
}

// preview returns addr's position with rewards accrued to now, without
// mutating state.
func (e *Ecosystem) preview(addr common.Address) *position {
	p, ok := e.positions[addr]
	if !ok {
		return e.emptyPosition()
	}
	cp := p.clone()
	e.accrue(cp, e.glpStake(addr))
	return cp
}

func (e *Ecosystem) emptyPosition() *position {
	p := &position{
		stakedGmx:   big.NewInt(0),
		stakedEsGmx: big.NewInt(0),
		stakedMp:    big.NewInt(0),
		claimableMp: big.NewInt(0),
		lastUpdate:  e.now(),
	}
	for i := range p.rewards {
		p.rewards[i] = trackRewards{
			claimableWeth:   big.NewInt(0),
			claimableEsGmx:  big.NewInt(0),
			cumulativeEsGmx: big.NewInt(0),
			averageStaked:   big.NewInt(0),
		}
	}
	return p
}

// fsGlpHook settles GLP rewards for both parties before fsGLP moves.
type fsGlpHook struct{ e *Ecosystem }

func (h fsGlpHook) BeforeTransfer(from, to common.Address, _ *big.Int) error {
	h.e.update(from)
	h.e.update(to)
	return nil
}

func (fsGlpHook) AfterTransfer(common.Address, common.Address, *big.Int) error { return nil }

func requirePositive(amount *big.Int) error {
	if !isPositive(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
