package isolation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"isovault/storage"
)

// VaultRecord is the durable view of one vault's registration. Balances are
// not part of it: the ledger and bank they would have to agree with live in
// memory only.
type VaultRecord struct {
	Owner       common.Address
	Vault       common.Address
	Initialized bool
}

// Store persists a factory's vault registry on a key/value database. Records
// are keyed by factory and owner.
type Store struct {
	db     storage.Database
	prefix []byte
}

func NewStore(db storage.Database, factory common.Address) *Store {
	prefix := append([]byte("isolation/"), factory.Bytes()...)
	prefix = append(prefix, []byte("/vault/")...)
	return &Store{db: db, prefix: prefix}
}

func (s *Store) key(owner common.Address) []byte {
	return append(append([]byte(nil), s.prefix...), owner.Bytes()...)
}

func (s *Store) Put(rec VaultRecord) error {
	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return err
	}
	return s.db.Put(s.key(rec.Owner), encoded)
}

// Get returns owner's record. The boolean is false when none is stored.
func (s *Store) Get(owner common.Address) (VaultRecord, bool, error) {
	raw, err := s.db.Get(s.key(owner))
	if errors.Is(err, storage.ErrNotFound) {
		return VaultRecord{}, false, nil
	}
	if err != nil {
		return VaultRecord{}, false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return VaultRecord{}, false, err
	}
	return rec, true, nil
}

// Records returns every stored record ordered by owner.
func (s *Store) Records() ([]VaultRecord, error) {
	var (
		out     []VaultRecord
		iterErr error
	)
	err := s.db.Iterate(s.prefix, func(_, value []byte) bool {
		rec, err := decodeRecord(value)
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

func decodeRecord(raw []byte) (VaultRecord, error) {
	var rec VaultRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return VaultRecord{}, fmt.Errorf("isolation: decode vault record: %w", err)
	}
	return rec, nil
}

// Records returns the factory's registry in vault order.
func (f *Factory) Records() []VaultRecord {
	out := make([]VaultRecord, 0, len(f.vaults))
	for _, addr := range f.Vaults() {
		router := f.vaults[addr]
		out = append(out, VaultRecord{
			Owner:       f.accounts[addr],
			Vault:       addr,
			Initialized: router.IsInitialized(),
		})
	}
	return out
}

// Flush writes every vault record to the attached store.
func (f *Factory) Flush() error {
	if f.store == nil {
		return nil
	}
	for _, rec := range f.Records() {
		if err := f.store.Put(rec); err != nil {
			return err
		}
	}
	return nil
}

// Restore rebuilds the registry from the attached store. It only runs on a
// factory that has no vaults yet. Restored vaults start with nothing wrapped.
func (f *Factory) Restore() (int, error) {
	if f.store == nil {
		return 0, nil
	}
	if len(f.vaults) > 0 {
		return 0, fmt.Errorf("%w: factory %s already has vaults", ErrVaultExists, f.address.Hex())
	}
	if f.impl == nil {
		return 0, ErrNilImplementation
	}
	records, err := f.store.Records()
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if derived := f.CalculateVaultByAccount(rec.Owner); derived != rec.Vault {
			return 0, fmt.Errorf("%w: record for %s names %s, expected %s", ErrInvalidAccount, rec.Owner.Hex(), rec.Vault.Hex(), derived.Hex())
		}
		router := newProxyRouter(rec.Vault, f, f.impl.NewStorage())
		if rec.Initialized {
			router.owner = rec.Owner
			router.initialized = true
		}
		f.vaults[rec.Vault] = router
		f.owners[rec.Owner] = rec.Vault
		f.accounts[rec.Vault] = rec.Owner
	}
	return len(records), nil
}
