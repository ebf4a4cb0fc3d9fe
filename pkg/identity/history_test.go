package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/vault"
)

func TestVerifyRejectsEmptyHistory(t *testing.T) {
	v := vault.New()
	_, err := (&identity.ChangeHistory{}).Verify(v)
	assert.Error(t, err)
}

func TestVerifyRejectsFirstChangeWithPreviousChange(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	rotated, _, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)

	// Splicing the second change in as if it were the first must fail:
	// it carries a non-empty previous_change.
	tampered := &identity.ChangeHistory{Changes: []*identity.Change{rotated.ChangeHistory().Changes[1]}}
	_, err = tampered.Verify(v)
	assert.Error(t, err)
}

func TestLatestPublicKeyMatchesMostRecentChange(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	firstKey := id.LatestPublicKey()

	rotated, _, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, firstKey, rotated.LatestPublicKey())
}

func TestPrimaryKeyValidAtOutsideWindow(t *testing.T) {
	v := vault.New()

	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	_, ok := id.ChangeHistory().PrimaryKeyValidAt(time.Now().Add(-2 * time.Hour))
	assert.False(t, ok)

	_, ok = id.ChangeHistory().PrimaryKeyValidAt(time.Now())
	assert.True(t, ok)
}
