package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/abac"
	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/repository/sql"
	"github.com/ockam/ockam/pkg/vault"
)

func openTestStore(t *testing.T) *sql.Store {
	t.Helper()
	store, err := sql.Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, sql.Migrate(ctx, store.DB()))
}

func TestChangeHistoryRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	v := vault.New()
	repo := store.ChangeHistories()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.Put(ctx, id.Identifier(), id.ChangeHistory()))

	got, err := repo.Get(ctx, id.Identifier())
	require.NoError(t, err)
	assert.Len(t, got.Changes, 1)

	rotated, _, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateIfNewer(ctx, id.Identifier(), rotated.ChangeHistory()))

	got, err = repo.Get(ctx, id.Identifier())
	require.NoError(t, err)
	assert.Len(t, got.Changes, 2)
}

func TestIdentityAttributesRepositoryPutKeepsNewerOnLateArrival(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	repo := store.Attributes()

	var subject identity.Identifier
	subject[0] = 4
	now := time.Now()

	require.NoError(t, repo.Put(ctx, "node-a", subject, &repository.AttributesEntry{
		Attributes: map[string][]byte{"role": []byte("edge")},
		AddedAt:    now,
	}))

	// A straggling concurrent verification with an older AddedAt arrives
	// after the newer one is already stored; it must not win.
	require.NoError(t, repo.Put(ctx, "node-a", subject, &repository.AttributesEntry{
		Attributes: map[string][]byte{"role": []byte("stale")},
		AddedAt:    now.Add(-time.Minute),
	}))

	entry, err := repo.Get(ctx, "node-a", subject)
	require.NoError(t, err)
	assert.Equal(t, []byte("edge"), entry.Attributes["role"])
}

func TestPoliciesRepositoryOverwritesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	repo := store.Policies()

	first := abac.Eq(abac.Ident("role"), abac.Const(abac.StringValue("edge")))
	second := abac.Eq(abac.Ident("role"), abac.Const(abac.StringValue("core")))

	require.NoError(t, repo.Put(ctx, "svc", "send", first))
	require.NoError(t, repo.Put(ctx, "svc", "send", second))

	got, err := repo.Get(ctx, "svc", "send")
	require.NoError(t, err)
	assert.Equal(t, abac.StringValue("core"), got.Children[1].Const)
}
