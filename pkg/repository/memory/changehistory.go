// Package memory implements the repository interfaces as
// single mutex-guarded in-process maps, mirroring
// pkg/manager.TokenManager's shape: one map and one mutex per
// repository. Records are stored and returned as the same pointers,
// not copies, so a caller that mutates a returned record changes what
// is stored.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
)

// ChangeHistoryRepository is an in-memory repository.ChangeHistoryRepository.
type ChangeHistoryRepository struct {
	mu   sync.RWMutex
	data map[identity.Identifier]*identity.ChangeHistory
}

// NewChangeHistoryRepository returns an empty ChangeHistoryRepository.
func NewChangeHistoryRepository() *ChangeHistoryRepository {
	return &ChangeHistoryRepository{data: make(map[identity.Identifier]*identity.ChangeHistory)}
}

func (r *ChangeHistoryRepository) Put(_ context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[id] = history
	return nil
}

func (r *ChangeHistoryRepository) Get(_ context.Context, id identity.Identifier) (*identity.ChangeHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("repository: %w: no change history for %s", ockamerror.ErrNotFound, id)
	}
	return h, nil
}

// UpdateIfNewer atomically (under the same lock) compares the stored
// history against history and keeps the newer one, as a single
// transaction rather than a separate read and write.
func (r *ChangeHistoryRepository) UpdateIfNewer(_ context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.data[id]
	if !ok {
		r.data[id] = history
		return nil
	}

	switch identity.Compare(history, existing) {
	case identity.Newer:
		r.data[id] = history
	case identity.Conflict:
		return fmt.Errorf("repository: %w: change history for %s conflicts with stored history", ockamerror.ErrConsistencyError, id)
	}
	// Equal or Older: keep the existing history, last-writer-never-loses
	// on a verified-older write.
	return nil
}

func (r *ChangeHistoryRepository) Delete(_ context.Context, id identity.Identifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}
