package isolation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// routerCodeHash stands in for the hash of the router's creation code. It never
// depends on the implementation, so upgrades keep every derived address.
var routerCodeHash = crypto.Keccak256([]byte("isovault.ProxyRouter.v1"))

// DeriveVaultAddress computes the address a factory assigns to owner's vault.
// The result is the same before and after the vault exists.
func DeriveVaultAddress(factory, owner common.Address) common.Address {
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(owner.Bytes()))
	return crypto.CreateAddress2(factory, salt, routerCodeHash)
}
