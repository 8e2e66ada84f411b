package isolation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "isovault/native/common"
)

var (
	ErrUnauthorized          = errors.New("isolation: unauthorized")
	ErrAlreadyInitialized    = errors.New("isolation: already initialized")
	ErrNotInitialized        = errors.New("isolation: not initialized")
	ErrFactoryNotInitialized = errors.New("isolation: factory not initialized")
	ErrVaultExists           = errors.New("isolation: vault already exists")
	ErrUnknownVault          = errors.New("isolation: unknown vault")
	ErrInvalidAccount        = errors.New("isolation: invalid account")
	ErrInvalidAmount         = errors.New("isolation: invalid amount")
	ErrInvalidMarket         = errors.New("isolation: invalid market")
	ErrInvalidQueuedTransfer = errors.New("isolation: transfer does not match queued transfer")
	ErrUnsettledTransfer     = errors.New("isolation: queued transfer left unsettled")
	ErrUntrustedConverter    = errors.New("isolation: token converter not trusted")
	ErrNilImplementation     = errors.New("isolation: vault implementation not configured")

	ErrOnlyLedger                = errors.New("isolation: caller is not the ledger")
	ErrInvalidInputToken         = errors.New("isolation: invalid input token")
	ErrInvalidOutputToken        = errors.New("isolation: invalid output token")
	ErrInvalidInputAmount        = errors.New("isolation: invalid input amount")
	ErrInvalidDesiredInputAmount = errors.New("isolation: invalid desired input amount")
	ErrInsufficientOutputAmount  = errors.New("isolation: insufficient output amount")
	ErrInvalidTradeOriginator    = errors.New("isolation: trade originator is not a vault")
	ErrInsufficientUnderlying    = errors.New("isolation: insufficient underlying balance")
	ErrMalformedPayload          = errors.New("isolation: malformed payload")

	// ErrReentrant is returned when a vault entry point is re-entered while a
	// guarded call on the same vault is still running.
	ErrReentrant = nativecommon.ErrReentrant
)

func unauthorized(caller common.Address, tier string) error {
	return fmt.Errorf("%w: %s is not the %s", ErrUnauthorized, caller.Hex(), tier)
}
