package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
)

// memoryHistoryStore is a minimal in-memory ChangeHistoryStore used only
// to exercise identity.Service without depending on pkg/repository
// (which imports pkg/identity and would create a cycle from a test in
// this package).
type memoryHistoryStore struct {
	mu   sync.Mutex
	data map[identity.Identifier]*identity.ChangeHistory
}

func newMemoryHistoryStore() *memoryHistoryStore {
	return &memoryHistoryStore{data: make(map[identity.Identifier]*identity.ChangeHistory)}
}

func (m *memoryHistoryStore) Put(_ context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = history
	return nil
}

func (m *memoryHistoryStore) Get(_ context.Context, id identity.Identifier) (*identity.ChangeHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.data[id]
	if !ok {
		return nil, assert.AnError
	}
	return h, nil
}

func (m *memoryHistoryStore) UpdateIfNewer(_ context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.data[id]
	if !ok || identity.Compare(history, existing) == identity.Newer {
		m.data[id] = history
	}
	return nil
}

func TestServiceCreateAndResolve(t *testing.T) {
	store := newMemoryHistoryStore()
	svc := identity.NewService(vault.New(), store)

	id, _, err := svc.Create(context.Background(), time.Hour)
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), id.Identifier())
	require.NoError(t, err)
	assert.Equal(t, id.Identifier(), resolved.Identifier())
}

func TestServiceRotatePersists(t *testing.T) {
	store := newMemoryHistoryStore()
	svc := identity.NewService(vault.New(), store)

	id, handle, err := svc.Create(context.Background(), time.Hour)
	require.NoError(t, err)

	rotated, _, err := svc.Rotate(context.Background(), id.Identifier(), handle, false, time.Hour)
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), id.Identifier())
	require.NoError(t, err)
	assert.Len(t, resolved.ChangeHistory().Changes, 2)
	assert.Equal(t, rotated.ChangeHistory().Changes[1].Signature, resolved.ChangeHistory().Changes[1].Signature)
}

func TestServiceImportPersistsUnderComputedIdentifier(t *testing.T) {
	v := vault.New()
	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	store := newMemoryHistoryStore()
	svc := identity.NewService(v, store)

	imported, err := svc.Import(context.Background(), peer.ChangeHistory(), nil)
	require.NoError(t, err)
	assert.Equal(t, peer.Identifier(), imported.Identifier())

	resolved, err := svc.Resolve(context.Background(), peer.Identifier())
	require.NoError(t, err)
	assert.Equal(t, peer.Identifier(), resolved.Identifier())
}

func TestServiceImportRejectsMismatchedExpectedIdentifier(t *testing.T) {
	v := vault.New()
	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	other, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	otherID := other.Identifier()

	store := newMemoryHistoryStore()
	svc := identity.NewService(v, store)

	_, err = svc.Import(context.Background(), peer.ChangeHistory(), &otherID)
	assert.ErrorIs(t, err, ockamerror.ErrIdentityVerificationFailed)
}
