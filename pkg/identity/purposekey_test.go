package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/vault"
)

func TestCreatePurposeKeyVerifies(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	attestation, _, err := identity.CreatePurposeKey(v, id.Identifier(), handle, identity.PurposeSecureChannel, time.Hour)
	require.NoError(t, err)

	err = identity.VerifyPurposeKeyAttestation(v, id.ChangeHistory(), id.Identifier(), attestation, identity.PurposeSecureChannel, time.Now())
	assert.NoError(t, err)
}

func TestVerifyPurposeKeyAttestationRejectsWrongPurpose(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	attestation, _, err := identity.CreatePurposeKey(v, id.Identifier(), handle, identity.PurposeSecureChannel, time.Hour)
	require.NoError(t, err)

	err = identity.VerifyPurposeKeyAttestation(v, id.ChangeHistory(), id.Identifier(), attestation, identity.PurposeCredentials, time.Now())
	assert.Error(t, err)
}

func TestVerifyPurposeKeyAttestationRejectsExpired(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	attestation, _, err := identity.CreatePurposeKey(v, id.Identifier(), handle, identity.PurposeSecureChannel, time.Millisecond)
	require.NoError(t, err)

	err = identity.VerifyPurposeKeyAttestation(v, id.ChangeHistory(), id.Identifier(), attestation, identity.PurposeSecureChannel, time.Now().Add(time.Hour))
	assert.Error(t, err)
}

func TestVerifyPurposeKeyAttestationToleratesRotation(t *testing.T) {
	v := vault.New()

	id, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	attestation, _, err := identity.CreatePurposeKey(v, id.Identifier(), handle, identity.PurposeSecureChannel, time.Hour)
	require.NoError(t, err)
	issuedAt := time.Now()

	rotated, _, err := identity.RotateKey(v, id, handle, false, time.Hour)
	require.NoError(t, err)

	// the attestation, signed under the pre-rotation primary key, still
	// verifies against the rotated history at the time it was issued.
	err = identity.VerifyPurposeKeyAttestation(v, rotated.ChangeHistory(), id.Identifier(), attestation, identity.PurposeSecureChannel, issuedAt)
	assert.NoError(t, err)
}
