package glp

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/events"
	"isovault/native/gmx"
	"isovault/native/isolation"
)

// RewardOptions selects what HandleRewards claims and where the proceeds go.
// GMX claimed without restaking and WETH not deposited are sent to the owner.
type RewardOptions struct {
	ClaimGmx              bool
	StakeGmx              bool
	ClaimEsGmx            bool
	StakeEsGmx            bool
	StakeMultiplierPoints bool
	ClaimWeth             bool
	DepositWethIntoLedger bool
	// DepositAccountNumberForWeth is the owner's ledger account credited when
	// DepositWethIntoLedger is set.
	DepositAccountNumberForWeth uint64
}

func (o RewardOptions) none() bool {
	return !o.ClaimGmx && !o.StakeGmx && !o.ClaimEsGmx && !o.StakeEsGmx &&
		!o.StakeMultiplierPoints && !o.ClaimWeth && !o.DepositWethIntoLedger
}

func (o RewardOptions) validate() error {
	if o.StakeGmx && !o.ClaimGmx {
		return fmt.Errorf("%w: staking GMX requires claiming it", ErrInvalidRewardOptions)
	}
	if o.StakeEsGmx && !o.ClaimEsGmx {
		return fmt.Errorf("%w: staking esGMX requires claiming it", ErrInvalidRewardOptions)
	}
	if o.DepositWethIntoLedger && !o.ClaimWeth {
		return fmt.Errorf("%w: depositing WETH requires claiming it", ErrInvalidRewardOptions)
	}
	return nil
}

// HandleRewards harvests the vault's staking rewards. The vault never ends
// holding GMX or WETH: both are restaked, deposited or forwarded to the owner.
func (v *Vault) HandleRewards(caller common.Address, opts RewardOptions) (gmx.RewardResult, error) {
	res := gmx.RewardResult{Gmx: big.NewInt(0), EsGmx: big.NewInt(0), Weth: big.NewInt(0), MultiplierPoints: big.NewInt(0)}
	err := v.ownerCall("handleRewards", caller, func(eco *gmx.Ecosystem) error {
		if opts.none() {
			return nil
		}
		if err := opts.validate(); err != nil {
			return err
		}
		out, err := eco.HandleRewards(v.Address(), gmx.RewardOptions{
			ClaimGmx:              opts.ClaimGmx,
			StakeGmx:              opts.StakeGmx,
			ClaimEsGmx:            opts.ClaimEsGmx,
			StakeEsGmx:            opts.StakeEsGmx,
			StakeMultiplierPoints: opts.StakeMultiplierPoints,
			ClaimWeth:             opts.ClaimWeth,
		})
		if err != nil {
			return err
		}
		tokens := eco.Tokens()
		if !opts.StakeGmx {
			if err := v.toOwner(tokens.GMX, out.Gmx); err != nil {
				return err
			}
		}
		if out.Weth.Sign() > 0 {
			if opts.DepositWethIntoLedger {
				if err := v.depositWeth(tokens.WETH, opts.DepositAccountNumberForWeth, out.Weth); err != nil {
					return err
				}
			} else if err := v.toOwner(tokens.WETH, out.Weth); err != nil {
				return err
			}
		}
		res = out
		v.Router().Factory().Emit(events.VaultRewards{
			Vault:            v.Address(),
			Gmx:              out.Gmx,
			EsGmx:            out.EsGmx,
			Weth:             out.Weth,
			WethDeposited:    opts.DepositWethIntoLedger,
			MultiplierPoints: out.MultiplierPoints,
		})
		return nil
	})
	return res, err
}

func (v *Vault) depositWeth(weth common.Address, accountNumber uint64, amount *big.Int) error {
	factory := v.Router().Factory()
	marketID, err := factory.Ledger().GetMarketIDByToken(weth)
	if err != nil {
		return err
	}
	return factory.DepositOtherTokenIntoLedgerForVaultOwner(v.Address(), accountNumber, marketID, amount)
}

// AcceptFullAccountTransfer moves sender's complete GMX staking position into
// the vault and credits any fsGLP it carried to the owner's ledger account 0.
// sender must have signalled the transfer to the vault beforehand.
func (v *Vault) AcceptFullAccountTransfer(caller, sender common.Address) error {
	router := v.Router()
	return router.Call("acceptFullAccountTransfer", func(impl isolation.Implementation, _ isolation.Storage) error {
		if err := router.RequireOwnerOrFactory(caller); err != nil {
			return err
		}
		eco, err := asStaking(impl)
		if err != nil {
			return err
		}
		if err := eco.AcceptTransfer(v.Address(), sender); err != nil {
			return err
		}
		factory := router.Factory()
		glp := factory.Bank().BalanceOf(eco.Tokens().FsGLP, v.Address())
		if glp.Sign() > 0 {
			if err := factory.SetShouldSkipTransfer(v.Address(), true); err != nil {
				return err
			}
			if err := factory.DepositIntoLedger(v.Address(), 0, glp); err != nil {
				return err
			}
		}
		factory.Emit(events.VaultTransferAccepted{Vault: v.Address(), Sender: sender, Amount: glp})
		return nil
	})
}
