package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: invalid amount")
)

// TransferHook lets a token with custom semantics intercept movements of its
// own balances. BeforeTransfer runs before balances are checked and may mint
// into the sender; AfterTransfer runs once the recipient has been credited.
type TransferHook interface {
	BeforeTransfer(from, to common.Address, amount *big.Int) error
	AfterTransfer(from, to common.Address, amount *big.Int) error
}

// ReceiveHook is invoked after a holder has been credited with a token.
type ReceiveHook func(token, from common.Address, amount *big.Int) error

// Bank is the token balance book shared by every simulated system. Balances
// are keyed by token then holder.
type Bank struct {
	balances  map[common.Address]map[common.Address]*big.Int
	supply    map[common.Address]*big.Int
	hooks     map[common.Address]TransferHook
	receivers map[common.Address]ReceiveHook
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{
		balances:  make(map[common.Address]map[common.Address]*big.Int),
		supply:    make(map[common.Address]*big.Int),
		hooks:     make(map[common.Address]TransferHook),
		receivers: make(map[common.Address]ReceiveHook),
	}
}

// SetTransferHook installs hook for token. Passing nil removes it.
func (b *Bank) SetTransferHook(token common.Address, hook TransferHook) {
	if b == nil {
		return
	}
	if hook == nil {
		delete(b.hooks, token)
		return
	}
	b.hooks[token] = hook
}

// SetReceiveHook installs a callback fired whenever holder receives tokens.
// Passing nil removes it.
func (b *Bank) SetReceiveHook(holder common.Address, hook ReceiveHook) {
	if b == nil {
		return
	}
	if hook == nil {
		delete(b.receivers, holder)
		return
	}
	b.receivers[holder] = hook
}

// BalanceOf returns a copy of holder's balance of token.
func (b *Bank) BalanceOf(token, holder common.Address) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	if bal, ok := b.balances[token][holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply returns the minted supply of token.
func (b *Bank) TotalSupply(token common.Address) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	if s, ok := b.supply[token]; ok {
		return new(big.Int).Set(s)
	}
	return big.NewInt(0)
}

// Mint credits amount of token to holder and grows the supply.
func (b *Bank) Mint(token, to common.Address, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	b.credit(token, to, amount)
	b.supply[token] = new(big.Int).Add(b.TotalSupply(token), amount)
	return nil
}

// Burn debits amount of token from holder and shrinks the supply.
func (b *Bank) Burn(token, from common.Address, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := b.debit(token, from, amount); err != nil {
		return err
	}
	b.supply[token] = new(big.Int).Sub(b.TotalSupply(token), amount)
	return nil
}

// Transfer moves amount of token from one holder to another, running the
// token's transfer hook and the recipient's receive hook.
func (b *Bank) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	hook := b.hooks[token]
	if hook != nil {
		if err := hook.BeforeTransfer(from, to, amount); err != nil {
			return err
		}
	}
	if err := b.debit(token, from, amount); err != nil {
		return err
	}
	b.credit(token, to, amount)
	if receiver := b.receivers[to]; receiver != nil {
		if err := receiver(token, from, amount); err != nil {
			return err
		}
	}
	if hook != nil {
		if err := hook.AfterTransfer(from, to, amount); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint implements common.Journaled.
func (b *Bank) Checkpoint() func() {
	balances := make(map[common.Address]map[common.Address]*big.Int, len(b.balances))
	for token, holders := range b.balances {
		copied := make(map[common.Address]*big.Int, len(holders))
		for holder, bal := range holders {
			copied[holder] = new(big.Int).Set(bal)
		}
		balances[token] = copied
	}
	supply := make(map[common.Address]*big.Int, len(b.supply))
	for token, s := range b.supply {
		supply[token] = new(big.Int).Set(s)
	}
	return func() {
		b.balances = balances
		b.supply = supply
	}
}

func (b *Bank) credit(token, to common.Address, amount *big.Int) {
	holders, ok := b.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		b.balances[token] = holders
	}
	current := holders[to]
	if current == nil {
		current = big.NewInt(0)
	}
	holders[to] = new(big.Int).Add(current, amount)
}

func (b *Bank) debit(token, from common.Address, amount *big.Int) error {
	current := b.BalanceOf(token, from)
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s holder %s has %s, needs %s", ErrInsufficientBalance, token.Hex(), from.Hex(), current, amount)
	}
	next := current.Sub(current, amount)
	if next.Sign() == 0 {
		delete(b.balances[token], from)
		return nil
	}
	b.balances[token][from] = next
	return nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
