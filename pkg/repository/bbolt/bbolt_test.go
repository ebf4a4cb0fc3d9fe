package bbolt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/repository/bbolt"
	"github.com/ockam/ockam/pkg/vault"
)

func TestChangeHistoryRepositoryRoundTrip(t *testing.T) {
	store, err := bbolt.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
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

	// re-verifying the round-tripped history against the vault that
	// created it must still succeed — CBOR round trip must not corrupt
	// signatures or public keys.
	_, err = got.Verify(v)
	require.NoError(t, err)
}

func TestChangeHistoryRepositoryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	v := vault.New()

	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	store, err := bbolt.Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.ChangeHistories().Put(ctx, id.Identifier(), id.ChangeHistory()))
	require.NoError(t, store.Close())

	reopened, err := bbolt.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.ChangeHistories().Get(ctx, id.Identifier())
	require.NoError(t, err)
	assert.Equal(t, vault.Ed25519, got.Changes[0].Body().PrimaryPublicKey.Scheme)
}

func TestIdentityAttributesRepositoryPutKeepsNewerOnLateArrival(t *testing.T) {
	store, err := bbolt.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	repo := store.Attributes()

	var subject identity.Identifier
	subject[0] = 3
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

func TestPurposeKeysRepositoryRoundTrip(t *testing.T) {
	store, err := bbolt.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	v := vault.New()
	repo := store.PurposeKeys()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	attestation, _, err := identity.CreatePurposeKey(v, id.Identifier(), handle, identity.PurposeSecureChannel, time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.Put(ctx, id.Identifier(), identity.PurposeSecureChannel, attestation))

	got, err := repo.Get(ctx, id.Identifier(), identity.PurposeSecureChannel)
	require.NoError(t, err)

	err = identity.VerifyPurposeKeyAttestation(v, id.ChangeHistory(), id.Identifier(), got, identity.PurposeSecureChannel, time.Now())
	assert.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id.Identifier(), identity.PurposeSecureChannel))
	_, err = repo.Get(ctx, id.Identifier(), identity.PurposeSecureChannel)
	assert.Error(t, err)
}
