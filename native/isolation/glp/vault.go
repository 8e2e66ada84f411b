package glp

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/gmx"
	"isovault/native/isolation"
)

var (
	ErrInvalidRewardOptions = errors.New("glp: invalid reward options")
	ErrUnsupportedVault     = errors.New("glp: vault implementation has no staking position")
)

// ImplementationName identifies the GLP vault logic in upgrade events.
const ImplementationName = "GLPIsolationModeTokenVaultV1"

// StakingImplementation is the part of a vault implementation the GLP handle
// needs. Later versions embed *Implementation to keep satisfying it.
type StakingImplementation interface {
	isolation.Implementation
	Ecosystem() *gmx.Ecosystem
}

// Implementation keeps each vault's fsGLP staked under the vault's own address
// so the vault, not the factory, earns the staking rewards.
type Implementation struct {
	eco *gmx.Ecosystem
}

func NewImplementation(eco *gmx.Ecosystem) *Implementation {
	return &Implementation{eco: eco}
}

func (i *Implementation) Name() string                  { return ImplementationName }
func (i *Implementation) NewStorage() isolation.Storage { return &isolation.BaseStorage{} }
func (i *Implementation) Ecosystem() *gmx.Ecosystem     { return i.eco }

func (i *Implementation) ExecuteDepositIntoVault(router *isolation.ProxyRouter, _ isolation.Storage, from common.Address, amount *big.Int) error {
	return router.Factory().Bank().Transfer(i.eco.Tokens().FsGLP, from, router.Address(), amount)
}

// ExecuteWithdrawalFromVault releases fsGLP to recipient. When the idle
// balance falls short the GLP vesting position is unwound first and the GMX it
// matured goes to the owner.
func (i *Implementation) ExecuteWithdrawalFromVault(router *isolation.ProxyRouter, _ isolation.Storage, recipient common.Address, amount *big.Int) error {
	b := router.Factory().Bank()
	tokens := i.eco.Tokens()
	vault := router.Address()
	if b.BalanceOf(tokens.FsGLP, vault).Cmp(amount) < 0 && i.eco.PairAmount(gmx.TrackGlp, vault).Sign() > 0 {
		out, err := i.eco.WithdrawVesting(gmx.TrackGlp, vault)
		if err != nil {
			return err
		}
		if out.Gmx.Sign() > 0 {
			if err := b.Transfer(tokens.GMX, vault, router.Owner(), out.Gmx); err != nil {
				return err
			}
		}
	}
	return b.Transfer(tokens.FsGLP, vault, recipient, amount)
}

// UnderlyingBalanceOf counts idle fsGLP plus fsGLP paired in the GLP vester.
func (i *Implementation) UnderlyingBalanceOf(router *isolation.ProxyRouter, _ isolation.Storage) *big.Int {
	vault := router.Address()
	held := router.Factory().Bank().BalanceOf(i.eco.Tokens().FsGLP, vault)
	return held.Add(held, i.eco.PairAmount(gmx.TrackGlp, vault))
}

// Vault is the owner-facing handle of a GLP vault. Besides the generic ledger
// flows it manages the vault's GMX staking and vesting position.
type Vault struct {
	*isolation.Vault
}

func NewVault(router *isolation.ProxyRouter) *Vault {
	return &Vault{Vault: isolation.NewVault(router)}
}

func asStaking(impl isolation.Implementation) (*gmx.Ecosystem, error) {
	s, ok := impl.(StakingImplementation)
	if !ok || s.Ecosystem() == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVault, impl.Name())
	}
	return s.Ecosystem(), nil
}

// ownerCall runs fn as a guarded, atomic vault operation restricted to the
// owner.
func (v *Vault) ownerCall(op string, caller common.Address, fn func(eco *gmx.Ecosystem) error) error {
	router := v.Router()
	return router.Call(op, func(impl isolation.Implementation, _ isolation.Storage) error {
		if err := router.RequireOwner(caller); err != nil {
			return err
		}
		eco, err := asStaking(impl)
		if err != nil {
			return err
		}
		return fn(eco)
	})
}

func (v *Vault) view(fn func(eco *gmx.Ecosystem) *big.Int) (*big.Int, error) {
	var out *big.Int
	err := v.Router().Forward(func(impl isolation.Implementation, _ isolation.Storage) error {
		eco, err := asStaking(impl)
		if err != nil {
			return err
		}
		out = fn(eco)
		return nil
	})
	return out, err
}

func (v *Vault) toOwner(token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return v.Router().Factory().Bank().Transfer(token, v.Address(), v.Owner(), amount)
}

// StakeGmx pulls amount of GMX from the owner and stakes it for the vault.
func (v *Vault) StakeGmx(caller common.Address, amount *big.Int) error {
	return v.ownerCall("stakeGmx", caller, func(eco *gmx.Ecosystem) error {
		if err := v.Router().Factory().Bank().Transfer(eco.Tokens().GMX, v.Owner(), v.Address(), amount); err != nil {
			return err
		}
		return eco.StakeGmx(v.Address(), amount)
	})
}

// UnstakeGmx unstakes amount of GMX and returns it to the owner.
func (v *Vault) UnstakeGmx(caller common.Address, amount *big.Int) error {
	return v.ownerCall("unstakeGmx", caller, func(eco *gmx.Ecosystem) error {
		if err := eco.UnstakeGmx(v.Address(), amount); err != nil {
			return err
		}
		return v.toOwner(eco.Tokens().GMX, amount)
	})
}

// StakeEsGmx stakes esGMX the vault already holds.
func (v *Vault) StakeEsGmx(caller common.Address, amount *big.Int) error {
	return v.ownerCall("stakeEsGmx", caller, func(eco *gmx.Ecosystem) error {
		return eco.StakeEsGmx(v.Address(), amount)
	})
}

// UnstakeEsGmx unstakes esGMX back into the vault. esGMX is not transferable
// so it never leaves the vault.
func (v *Vault) UnstakeEsGmx(caller common.Address, amount *big.Int) error {
	return v.ownerCall("unstakeEsGmx", caller, func(eco *gmx.Ecosystem) error {
		return eco.UnstakeEsGmx(v.Address(), amount)
	})
}

// VestGlp escrows esAmount of esGMX in the GLP vester, pairing the vault's
// fsGLP.
func (v *Vault) VestGlp(caller common.Address, esAmount *big.Int) error {
	return v.ownerCall("vestGlp", caller, func(eco *gmx.Ecosystem) error {
		return eco.Vest(gmx.TrackGlp, v.Address(), esAmount)
	})
}

// VestGmx escrows esAmount of esGMX in the GMX vester, pairing staked GMX.
func (v *Vault) VestGmx(caller common.Address, esAmount *big.Int) error {
	return v.ownerCall("vestGmx", caller, func(eco *gmx.Ecosystem) error {
		return eco.Vest(gmx.TrackGmx, v.Address(), esAmount)
	})
}

// UnvestGlp withdraws the GLP vesting position. Matured GMX is restaked when
// shouldStakeGmx is set and sent to the owner otherwise.
func (v *Vault) UnvestGlp(caller common.Address, shouldStakeGmx bool) error {
	return v.unvest("unvestGlp", caller, gmx.TrackGlp, shouldStakeGmx)
}

// UnvestGmx withdraws the GMX vesting position. Matured GMX is restaked when
// shouldStakeGmx is set and sent to the owner otherwise.
func (v *Vault) UnvestGmx(caller common.Address, shouldStakeGmx bool) error {
	return v.unvest("unvestGmx", caller, gmx.TrackGmx, shouldStakeGmx)
}

func (v *Vault) unvest(op string, caller common.Address, track gmx.Track, shouldStakeGmx bool) error {
	return v.ownerCall(op, caller, func(eco *gmx.Ecosystem) error {
		out, err := eco.WithdrawVesting(track, v.Address())
		if err != nil {
			return err
		}
		if out.Gmx.Sign() == 0 {
			return nil
		}
		if shouldStakeGmx {
			return eco.StakeGmx(v.Address(), out.Gmx)
		}
		return v.toOwner(eco.Tokens().GMX, out.Gmx)
	})
}

// GmxBalanceOf returns the GMX the vault controls, idle or staked. GMX paired
// in the GMX vester stays staked and is included.
func (v *Vault) GmxBalanceOf() (*big.Int, error) {
	return v.view(func(eco *gmx.Ecosystem) *big.Int {
		idle := v.Router().Factory().Bank().BalanceOf(eco.Tokens().GMX, v.Address())
		return idle.Add(idle, eco.DepositBalance(v.Address(), eco.Tokens().GMX))
	})
}

// EsGmxBalanceOf returns the vault's esGMX across idle, staked and vesting.
func (v *Vault) EsGmxBalanceOf() (*big.Int, error) {
	return v.view(func(eco *gmx.Ecosystem) *big.Int {
		vault := v.Address()
		total := v.Router().Factory().Bank().BalanceOf(eco.Tokens().EsGMX, vault)
		total.Add(total, eco.DepositBalance(vault, eco.Tokens().EsGMX))
		total.Add(total, eco.VestingBalance(gmx.TrackGlp, vault))
		return total.Add(total, eco.VestingBalance(gmx.TrackGmx, vault))
	})
}

// GetGlpAmountNeededForEsGmxVesting returns the fsGLP vesting esAmount more
// would pair.
func (v *Vault) GetGlpAmountNeededForEsGmxVesting(esAmount *big.Int) (*big.Int, error) {
	return v.view(func(eco *gmx.Ecosystem) *big.Int {
		return eco.PairAmountNeeded(gmx.TrackGlp, v.Address(), esAmount)
	})
}

// GetGmxAmountNeededForEsGmxVesting returns the staked GMX vesting esAmount
// more would pair.
func (v *Vault) GetGmxAmountNeededForEsGmxVesting(esAmount *big.Int) (*big.Int, error) {
	return v.view(func(eco *gmx.Ecosystem) *big.Int {
		return eco.PairAmountNeeded(gmx.TrackGmx, v.Address(), esAmount)
	})
}
