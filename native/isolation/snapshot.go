package isolation

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	bolt "go.etcd.io/bbolt"
)

var bucketVaults = []byte("vaults")

// WriteSnapshot exports records into a BoltDB file at path, one bucket per
// factory.
func WriteSnapshot(path string, factory common.Address, records []VaultRecord) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketVaults)
		if err != nil {
			return err
		}
		if root.Bucket(factory.Bytes()) != nil {
			if err := root.DeleteBucket(factory.Bytes()); err != nil {
				return err
			}
		}
		bucket, err := root.CreateBucket(factory.Bytes())
		if err != nil {
			return err
		}
		for _, rec := range records {
			encoded, err := rlp.EncodeToBytes(&rec)
			if err != nil {
				return err
			}
			if err := bucket.Put(rec.Owner.Bytes(), encoded); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadSnapshot loads the records written for factory.
func ReadSnapshot(path string, factory common.Address) ([]VaultRecord, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var out []VaultRecord
	err = db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketVaults)
		if root == nil {
			return nil
		}
		bucket := root.Bucket(factory.Bytes())
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
