package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/vault"
)

func TestIssueAndVerifyCredential(t *testing.T) {
	v := vault.New()

	issuer, issuerHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	issuerKeyAttestation, issuerKeyHandle, err := identity.CreatePurposeKey(v, issuer.Identifier(), issuerHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	attrs := map[string][]byte{"role": []byte("edge")}
	cred, err := identity.IssueCredential(v, issuerKeyHandle, subject.Identifier(), attrs, time.Hour)
	require.NoError(t, err)

	got, err := identity.VerifyCredential(v, issuer.ChangeHistory(), issuer.Identifier(), issuerKeyAttestation, cred, subject.Identifier(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, attrs, got)
}

func TestVerifyCredentialRejectsWrongSubject(t *testing.T) {
	v := vault.New()

	issuer, issuerHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	issuerKeyAttestation, issuerKeyHandle, err := identity.CreatePurposeKey(v, issuer.Identifier(), issuerHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	other, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	cred, err := identity.IssueCredential(v, issuerKeyHandle, subject.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)

	_, err = identity.VerifyCredential(v, issuer.ChangeHistory(), issuer.Identifier(), issuerKeyAttestation, cred, other.Identifier(), time.Now())
	assert.Error(t, err)
}

func TestVerifyCredentialRejectsExpired(t *testing.T) {
	v := vault.New()

	issuer, issuerHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	issuerKeyAttestation, issuerKeyHandle, err := identity.CreatePurposeKey(v, issuer.Identifier(), issuerHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	cred, err := identity.IssueCredential(v, issuerKeyHandle, subject.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Millisecond)
	require.NoError(t, err)

	_, err = identity.VerifyCredential(v, issuer.ChangeHistory(), issuer.Identifier(), issuerKeyAttestation, cred, subject.Identifier(), time.Now().Add(time.Hour))
	assert.Error(t, err)
}

func TestVerifyCredentialRejectsForgedSignature(t *testing.T) {
	v := vault.New()

	issuer, issuerHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	issuerKeyAttestation, issuerKeyHandle, err := identity.CreatePurposeKey(v, issuer.Identifier(), issuerHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	cred, err := identity.IssueCredential(v, issuerKeyHandle, subject.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)
	cred.Signature[0] ^= 0xFF

	_, err = identity.VerifyCredential(v, issuer.ChangeHistory(), issuer.Identifier(), issuerKeyAttestation, cred, subject.Identifier(), time.Now())
	assert.Error(t, err)
}
