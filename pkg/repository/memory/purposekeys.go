package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
)

type purposeKeyKey struct {
	subject identity.Identifier
	purpose identity.PurposeType
}

// PurposeKeysRepository is an in-memory repository.PurposeKeysRepository.
type PurposeKeysRepository struct {
	mu   sync.RWMutex
	data map[purposeKeyKey]*identity.PurposeKeyAttestation
}

func NewPurposeKeysRepository() *PurposeKeysRepository {
	return &PurposeKeysRepository{data: make(map[purposeKeyKey]*identity.PurposeKeyAttestation)}
}

func (r *PurposeKeysRepository) Put(_ context.Context, subject identity.Identifier, purpose identity.PurposeType, attestation *identity.PurposeKeyAttestation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[purposeKeyKey{subject, purpose}] = attestation
	return nil
}

func (r *PurposeKeysRepository) Get(_ context.Context, subject identity.Identifier, purpose identity.PurposeType) (*identity.PurposeKeyAttestation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[purposeKeyKey{subject, purpose}]
	if !ok {
		return nil, fmt.Errorf("repository: %w: no %s purpose key for %s", ockamerror.ErrNotFound, purpose, subject)
	}
	return a, nil
}

func (r *PurposeKeysRepository) Delete(_ context.Context, subject identity.Identifier, purpose identity.PurposeType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, purposeKeyKey{subject, purpose})
	return nil
}
