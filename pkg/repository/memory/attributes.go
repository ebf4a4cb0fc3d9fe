package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/repository"
)

type attributesKey struct {
	nodeName string
	subject  identity.Identifier
}

// IdentityAttributesRepository is an in-memory
// repository.IdentityAttributesRepository. Expiry is lazy: Get and List
// both skip and delete entries whose Expired(now) is true
// rather than running a background sweep.
type IdentityAttributesRepository struct {
	mu   sync.Mutex
	data map[attributesKey]*repository.AttributesEntry
}

func NewIdentityAttributesRepository() *IdentityAttributesRepository {
	return &IdentityAttributesRepository{data: make(map[attributesKey]*repository.AttributesEntry)}
}

// Put writes entry unless an existing entry for the same subject was
// added more recently: two concurrent successful verifications for the
// same subject race to call Put, and the one with the older AddedAt
// must never clobber the one that actually arrived last.
func (r *IdentityAttributesRepository) Put(_ context.Context, nodeName string, subject identity.Identifier, entry *repository.AttributesEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := attributesKey{nodeName, subject}
	if existing, ok := r.data[key]; ok && existing.AddedAt.After(entry.AddedAt) {
		return nil
	}
	r.data[key] = entry
	return nil
}

func (r *IdentityAttributesRepository) Get(_ context.Context, nodeName string, subject identity.Identifier) (*repository.AttributesEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := attributesKey{nodeName, subject}
	entry, ok := r.data[key]
	if !ok {
		return nil, fmt.Errorf("repository: %w: no attributes for %s at %s", ockamerror.ErrNotFound, subject, nodeName)
	}
	if entry.Expired(time.Now()) {
		delete(r.data, key)
		return nil, nil
	}
	return entry, nil
}

func (r *IdentityAttributesRepository) List(_ context.Context, nodeName string) ([]repository.SubjectEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []repository.SubjectEntry
	for key, entry := range r.data {
		if key.nodeName != nodeName {
			continue
		}
		if entry.Expired(now) {
			delete(r.data, key)
			continue
		}
		out = append(out, repository.SubjectEntry{Subject: key.subject, Entry: entry})
	}
	return out, nil
}

func (r *IdentityAttributesRepository) DeleteExpired(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.data {
		if entry.Expired(now) {
			delete(r.data, key)
		}
	}
	return nil
}
