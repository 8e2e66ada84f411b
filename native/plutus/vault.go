package plutus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"isovault/native/bank"
)

var (
	ErrInvalidAmount = errors.New("plutus: invalid amount")
	errNilBank       = errors.New("plutus: bank not configured")
)

var basisPoints = big.NewInt(10_000)

// DefaultExitFeeBps is the 2% fee charged on redemption.
const DefaultExitFeeBps = 200

// Vault is the plvGLP share vault over fsGLP. Assets are held under the
// vault's custody address; shares are a bank token.
type Vault struct {
	bank       *bank.Bank
	address    common.Address
	share      common.Address
	asset      common.Address
	exitFeeBps uint64
}

func NewVault(b *bank.Bank, address, share, asset common.Address, exitFeeBps uint64) *Vault {
	return &Vault{bank: b, address: address, share: share, asset: asset, exitFeeBps: exitFeeBps}
}

func (v *Vault) Address() common.Address { return v.address }
func (v *Vault) Share() common.Address   { return v.share }
func (v *Vault) Asset() common.Address   { return v.asset }
func (v *Vault) ExitFeeBps() uint64      { return v.exitFeeBps }

// TotalAssets returns the fsGLP backing all shares.
func (v *Vault) TotalAssets() *big.Int { return v.bank.BalanceOf(v.asset, v.address) }

// TotalSupply returns the outstanding plvGLP.
func (v *Vault) TotalSupply() *big.Int { return v.bank.TotalSupply(v.share) }

// ExchangeRate returns the redemption rate net of the exit fee as a
// numerator over the share supply.
func (v *Vault) ExchangeRate() (numerator, denominator *big.Int) {
	numerator = new(big.Int).Mul(v.TotalAssets(), new(big.Int).Sub(basisPoints, new(big.Int).SetUint64(v.exitFeeBps)))
	numerator.Quo(numerator, basisPoints)
	return numerator, v.TotalSupply()
}

// PreviewDeposit returns the shares minted for assets.
func (v *Vault) PreviewDeposit(assets *big.Int) *big.Int {
	supply := v.TotalSupply()
	total := v.TotalAssets()
	if supply.Sign() == 0 || total.Sign() == 0 {
		return new(big.Int).Set(assets)
	}
	out := new(big.Int).Mul(assets, supply)
	return out.Quo(out, total)
}

// PreviewRedeem returns the fsGLP paid for shares after the exit fee.
func (v *Vault) PreviewRedeem(shares *big.Int) *big.Int {
	num, den := v.ExchangeRate()
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(shares, num)
	return out.Quo(out, den)
}

// Deposit pulls assets from account and mints shares to it.
func (v *Vault) Deposit(account common.Address, assets *big.Int) (*big.Int, error) {
	if v.bank == nil {
		return nil, errNilBank
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, assets)
	}
	shares := v.PreviewDeposit(assets)
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s assets mint no shares", ErrInvalidAmount, assets)
	}
	if err := v.bank.Transfer(v.asset, account, v.address, assets); err != nil {
		return nil, err
	}
	if err := v.bank.Mint(v.share, account, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns shares held by account and pays the net assets to receiver.
// The exit fee stays in the vault.
func (v *Vault) Redeem(account common.Address, shares *big.Int, receiver common.Address) (*big.Int, error) {
	if v.bank == nil {
		return nil, errNilBank
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, shares)
	}
	assets := v.PreviewRedeem(shares)
	if err := v.bank.Burn(v.share, account, shares); err != nil {
		return nil, err
	}
	if err := v.bank.Transfer(v.asset, v.address, receiver, assets); err != nil {
		return nil, err
	}
	return assets, nil
}
