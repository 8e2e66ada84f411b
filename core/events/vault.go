package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"isovault/core/types"
)

const (
	// TypeFactoryInitialized is emitted once governance initializes a factory.
	TypeFactoryInitialized = "factory.initialized"
	// TypeConverterTrustUpdated captures a change to the trusted converter set.
	TypeConverterTrustUpdated = "factory.converterTrust"
	// TypeImplementationUpgraded is emitted when the shared vault logic changes.
	TypeImplementationUpgraded = "factory.implementationUpgraded"
	// TypeVaultCreated is emitted when a router is deployed for an owner.
	TypeVaultCreated = "vault.created"
	// TypeVaultDeposit captures wrapped collateral entering the ledger.
	TypeVaultDeposit = "vault.deposit"
	// TypeVaultWithdrawal captures wrapped collateral leaving the ledger.
	TypeVaultWithdrawal = "vault.withdraw"
	// TypeVaultRewards is emitted after a vault harvests rewards.
	TypeVaultRewards = "vault.rewards"
	// TypeVaultTransferAccepted is emitted when a vault absorbs an external
	// staking position.
	TypeVaultTransferAccepted = "vault.transferAccepted"
)

type FactoryInitialized struct {
	Factory    common.Address
	Converters []common.Address
}

func (FactoryInitialized) EventType() string { return TypeFactoryInitialized }

func (e FactoryInitialized) Event() *types.Event {
	return &types.Event{Type: TypeFactoryInitialized, Attributes: map[string]string{
		"factory":    formatAddress(e.Factory),
		"converters": strconv.Itoa(len(e.Converters)),
	}}
}

type ConverterTrustUpdated struct {
	Factory   common.Address
	Converter common.Address
	Trusted   bool
}

func (ConverterTrustUpdated) EventType() string { return TypeConverterTrustUpdated }

func (e ConverterTrustUpdated) Event() *types.Event {
	return &types.Event{Type: TypeConverterTrustUpdated, Attributes: map[string]string{
		"factory":   formatAddress(e.Factory),
		"converter": formatAddress(e.Converter),
		"trusted":   strconv.FormatBool(e.Trusted),
	}}
}

type ImplementationUpgraded struct {
	Factory  common.Address
	Previous string
	Next     string
}

func (ImplementationUpgraded) EventType() string { return TypeImplementationUpgraded }

func (e ImplementationUpgraded) Event() *types.Event {
	return &types.Event{Type: TypeImplementationUpgraded, Attributes: map[string]string{
		"factory":  formatAddress(e.Factory),
		"previous": e.Previous,
		"next":     e.Next,
	}}
}

type VaultCreated struct {
	Factory common.Address
	Owner   common.Address
	Vault   common.Address
}

func (VaultCreated) EventType() string { return TypeVaultCreated }

func (e VaultCreated) Event() *types.Event {
	return &types.Event{Type: TypeVaultCreated, Attributes: map[string]string{
		"factory": formatAddress(e.Factory),
		"owner":   formatAddress(e.Owner),
		"vault":   formatAddress(e.Vault),
	}}
}

// VaultTransfer captures wrapped collateral moving between a vault and the
// ledger. Deposit selects the direction.
type VaultTransfer struct {
	Factory       common.Address
	Vault         common.Address
	AccountNumber uint64
	Amount        *big.Int
	Deposit       bool
}

func (e VaultTransfer) EventType() string {
	if e.Deposit {
		return TypeVaultDeposit
	}
	return TypeVaultWithdrawal
}

func (e VaultTransfer) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"factory":       formatAddress(e.Factory),
		"vault":         formatAddress(e.Vault),
		"accountNumber": formatUint(e.AccountNumber),
		"amount":        formatAmount(e.Amount),
	}}
}

type VaultRewards struct {
	Vault            common.Address
	Gmx              *big.Int
	EsGmx            *big.Int
	Weth             *big.Int
	WethDeposited    bool
	MultiplierPoints *big.Int
}

func (VaultRewards) EventType() string { return TypeVaultRewards }

func (e VaultRewards) Event() *types.Event {
	return &types.Event{Type: TypeVaultRewards, Attributes: map[string]string{
		"vault":            formatAddress(e.Vault),
		"gmx":              formatAmount(e.Gmx),
		"esGmx":            formatAmount(e.EsGmx),
		"weth":             formatAmount(e.Weth),
		"wethDeposited":    strconv.FormatBool(e.WethDeposited),
		"multiplierPoints": formatAmount(e.MultiplierPoints),
	}}
}

type VaultTransferAccepted struct {
	Vault  common.Address
	Sender common.Address
	Amount *big.Int
}

func (VaultTransferAccepted) EventType() string { return TypeVaultTransferAccepted }

func (e VaultTransferAccepted) Event() *types.Event {
	return &types.Event{Type: TypeVaultTransferAccepted, Attributes: map[string]string{
		"vault":  formatAddress(e.Vault),
		"sender": formatAddress(e.Sender),
		"amount": formatAmount(e.Amount),
	}}
}
