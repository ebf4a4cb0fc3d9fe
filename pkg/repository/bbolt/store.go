// Package bbolt implements the repository interfaces over
// go.etcd.io/bbolt, one bucket per entity, adapted 1:1 from
// pkg/storage.BoltStore's bucket-per-entity, Update/View-per-operation
// shape — with two changes: records are CBOR (via pkg/wireformat)
// rather than JSON, to keep one wire codec for the same structs both
// on the wire and at rest; and ChangeHistoryRepository.UpdateIfNewer
// runs its compare-and-replace inside a single bbolt.Update transaction
// rather than two separate calls, the way bbolt's single-writer
// transactions are meant to be used.
package bbolt

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketChangeHistories = []byte("change_histories")
	bucketPurposeKeys     = []byte("purpose_keys")
	bucketAttributes      = []byte("attributes")
	bucketPolicies        = []byte("policies")
	bucketCredentials     = []byte("credentials")
)

// Store opens a single bbolt database file and exposes one repository
// implementation per bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at
// <dataDir>/ockam.db and ensures every bucket this package uses exists.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "ockam.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("repository/bbolt: opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketChangeHistories,
			bucketPurposeKeys,
			bucketAttributes,
			bucketPolicies,
			bucketCredentials,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ChangeHistories returns a repository.ChangeHistoryRepository backed
// by this store.
func (s *Store) ChangeHistories() *ChangeHistoryRepository {
	return &ChangeHistoryRepository{db: s.db}
}

// PurposeKeys returns a repository.PurposeKeysRepository backed by
// this store.
func (s *Store) PurposeKeys() *PurposeKeysRepository {
	return &PurposeKeysRepository{db: s.db}
}

// Attributes returns a repository.IdentityAttributesRepository backed
// by this store.
func (s *Store) Attributes() *IdentityAttributesRepository {
	return &IdentityAttributesRepository{db: s.db}
}

// Policies returns a repository.PoliciesRepository backed by this
// store.
func (s *Store) Policies() *PoliciesRepository {
	return &PoliciesRepository{db: s.db}
}

// Credentials returns a repository.CredentialsRepository backed by
// this store.
func (s *Store) Credentials() *CredentialsRepository {
	return &CredentialsRepository{db: s.db}
}
