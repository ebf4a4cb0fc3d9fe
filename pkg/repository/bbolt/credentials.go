package bbolt

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// CredentialsRepository is a bbolt-backed repository.CredentialsRepository.
type CredentialsRepository struct {
	db *bolt.DB
}

func (r *CredentialsRepository) Put(_ context.Context, subject identity.Identifier, credential *identity.Credential) error {
	data, err := wireformat.Marshal(credential)
	if err != nil {
		return fmt.Errorf("repository/bbolt: encoding credential: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put(subject[:], data)
	})
}

func (r *CredentialsRepository) Get(_ context.Context, subject identity.Identifier) (*identity.Credential, error) {
	var cred identity.Credential
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCredentials).Get(subject[:])
		if data == nil {
			return fmt.Errorf("repository: %w: no cached credential for %s", ockamerror.ErrNotFound, subject)
		}
		return wireformat.Unmarshal(data, &cred)
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
