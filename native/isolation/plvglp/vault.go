// Package plvglp isolates Plutus plvGLP shares. The vault logic is the plain
// token vault; the asset specific parts are the USDC converters, which route
// through GLP, and the share price oracle.
package plvglp

import "isovault/native/isolation"

// ImplementationName identifies the plvGLP vault logic in upgrade events.
const ImplementationName = "PlutusVaultGLPIsolationModeTokenVaultV1"

// Implementation holds plvGLP shares under the vault address. plvGLP earns
// inside the Plutus vault, so there is no staking position to manage.
type Implementation struct {
	isolation.TokenVault
}

func (Implementation) Name() string { return ImplementationName }
