package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
)

// CredentialsRepository is an in-memory repository.CredentialsRepository.
// It caches at most one credential per subject; Put always overwrites,
// leaving "is this newer" policy to the caller — unlike
// ChangeHistoryRepository, credentials carry no causal ordering to
// compare against each other, only an expiry.
type CredentialsRepository struct {
	mu   sync.RWMutex
	data map[identity.Identifier]*identity.Credential
}

func NewCredentialsRepository() *CredentialsRepository {
	return &CredentialsRepository{data: make(map[identity.Identifier]*identity.Credential)}
}

func (r *CredentialsRepository) Put(_ context.Context, subject identity.Identifier, credential *identity.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[subject] = credential
	return nil
}

func (r *CredentialsRepository) Get(_ context.Context, subject identity.Identifier) (*identity.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.data[subject]
	if !ok {
		return nil, fmt.Errorf("repository: %w: no cached credential for %s", ockamerror.ErrNotFound, subject)
	}
	return c, nil
}
