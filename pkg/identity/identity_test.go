package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
)

func TestCreateIdentityVerifies(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.False(t, id.Identifier().IsZero())
	assert.Len(t, id.ChangeHistory().Changes, 1)
}

func TestRotateKeyPreservesIdentifier(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	rotated, newHandle, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, handle, newHandle)
	assert.Equal(t, id.Identifier(), rotated.Identifier())
	assert.Len(t, rotated.ChangeHistory().Changes, 2)

	// the rotated history still verifies end-to-end.
	verifiedID, err := rotated.ChangeHistory().Verify(v)
	require.NoError(t, err)
	assert.Equal(t, id.Identifier(), verifiedID)
}

func TestImportIdentityRejectsTamperedHistory(t *testing.T) {
	v := vault.New()

	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	history := id.ChangeHistory()
	history.Changes[0].Signature[0] ^= 0xFF

	_, err = identity.ImportIdentity(v, history, nil)
	assert.Error(t, err)
}

func TestImportIdentityRejectsMismatchedExpectedIdentifier(t *testing.T) {
	v := vault.New()

	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	other, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	otherID := other.Identifier()

	_, err = identity.ImportIdentity(v, id.ChangeHistory(), &otherID)
	assert.ErrorIs(t, err, ockamerror.ErrIdentityVerificationFailed)
}

func TestImportIdentityAcceptsMatchingExpectedIdentifier(t *testing.T) {
	v := vault.New()

	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	expected := id.Identifier()

	imported, err := identity.ImportIdentity(v, id.ChangeHistory(), &expected)
	require.NoError(t, err)
	assert.Equal(t, id.Identifier(), imported.Identifier())
}

func TestCompareDetectsConflict(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	a, _, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)
	b, _, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, identity.Conflict, identity.Compare(a.ChangeHistory(), b.ChangeHistory()))
	assert.Equal(t, identity.Equal, identity.Compare(a.ChangeHistory(), a.ChangeHistory()))
}
