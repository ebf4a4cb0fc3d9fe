package bbolt

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// ChangeHistoryRepository is a bbolt-backed repository.ChangeHistoryRepository.
type ChangeHistoryRepository struct {
	db *bolt.DB
}

func (r *ChangeHistoryRepository) Put(_ context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	data, err := wireformat.Marshal(history)
	if err != nil {
		return fmt.Errorf("repository/bbolt: encoding change history: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChangeHistories).Put(id[:], data)
	})
}

func (r *ChangeHistoryRepository) Get(_ context.Context, id identity.Identifier) (*identity.ChangeHistory, error) {
	var history identity.ChangeHistory
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketChangeHistories).Get(id[:])
		if data == nil {
			return fmt.Errorf("repository: %w: no change history for %s", ockamerror.ErrNotFound, id)
		}
		return wireformat.Unmarshal(data, &history)
	})
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// UpdateIfNewer reads, compares, and conditionally writes within a
// single bbolt.Update transaction, keeping the compare-and-replace
// atomic the way bbolt's single-writer-per-transaction discipline
// intends.
func (r *ChangeHistoryRepository) UpdateIfNewer(_ context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChangeHistories)

		existingData := b.Get(id[:])
		if existingData == nil {
			data, err := wireformat.Marshal(history)
			if err != nil {
				return fmt.Errorf("repository/bbolt: encoding change history: %w", err)
			}
			return b.Put(id[:], data)
		}

		var existing identity.ChangeHistory
		if err := wireformat.Unmarshal(existingData, &existing); err != nil {
			return fmt.Errorf("repository/bbolt: decoding stored change history: %w", err)
		}

		switch identity.Compare(history, &existing) {
		case identity.Newer:
			data, err := wireformat.Marshal(history)
			if err != nil {
				return fmt.Errorf("repository/bbolt: encoding change history: %w", err)
			}
			return b.Put(id[:], data)
		case identity.Conflict:
			return fmt.Errorf("repository: %w: change history for %s conflicts with stored history", ockamerror.ErrConsistencyError, id)
		default:
			return nil
		}
	})
}

func (r *ChangeHistoryRepository) Delete(_ context.Context, id identity.Identifier) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChangeHistories).Delete(id[:])
	})
}
