package bbolt

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// PurposeKeysRepository is a bbolt-backed repository.PurposeKeysRepository.
type PurposeKeysRepository struct {
	db *bolt.DB
}

func purposeKeyBucketKey(subject identity.Identifier, purpose identity.PurposeType) []byte {
	return []byte(fmt.Sprintf("%s/%d", subject, purpose))
}

func (r *PurposeKeysRepository) Put(_ context.Context, subject identity.Identifier, purpose identity.PurposeType, attestation *identity.PurposeKeyAttestation) error {
	data, err := wireformat.Marshal(attestation)
	if err != nil {
		return fmt.Errorf("repository/bbolt: encoding purpose key attestation: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPurposeKeys).Put(purposeKeyBucketKey(subject, purpose), data)
	})
}

func (r *PurposeKeysRepository) Get(_ context.Context, subject identity.Identifier, purpose identity.PurposeType) (*identity.PurposeKeyAttestation, error) {
	var attestation identity.PurposeKeyAttestation
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPurposeKeys).Get(purposeKeyBucketKey(subject, purpose))
		if data == nil {
			return fmt.Errorf("repository: %w: no %s purpose key for %s", ockamerror.ErrNotFound, purpose, subject)
		}
		return wireformat.Unmarshal(data, &attestation)
	})
	if err != nil {
		return nil, err
	}
	return &attestation, nil
}

func (r *PurposeKeysRepository) Delete(_ context.Context, subject identity.Identifier, purpose identity.PurposeType) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPurposeKeys).Delete(purposeKeyBucketKey(subject, purpose))
	})
}
