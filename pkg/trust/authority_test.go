package trust_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/repository/memory"
	"github.com/ockam/ockam/pkg/trust"
	"github.com/ockam/ockam/pkg/vault"
)

func TestAuthorityVerifierAcceptsCredentialFromTrustedAuthority(t *testing.T) {
	v := vault.New()
	ctx := context.Background()

	authority, authorityHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	credKeyAttest, credKeyHandle, err := identity.CreatePurposeKey(v, authority.Identifier(), authorityHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	cred, err := identity.IssueCredential(v, credKeyHandle, subject.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)

	histories := memory.NewChangeHistoryRepository()
	require.NoError(t, histories.Put(ctx, authority.Identifier(), authority.ChangeHistory()))
	purposeKeys := memory.NewPurposeKeysRepository()
	require.NoError(t, purposeKeys.Put(ctx, authority.Identifier(), identity.PurposeCredentials, credKeyAttest))

	verifier := &trust.AuthorityVerifier{
		Vault:       v,
		Histories:   histories,
		PurposeKeys: purposeKeys,
		Authorities: []identity.Identifier{authority.Identifier()},
	}

	attrs, err := verifier.Verify(ctx, cred, subject.Identifier(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []byte("edge"), attrs["role"])
}

func TestAuthorityVerifierRejectsUntrustedAuthority(t *testing.T) {
	v := vault.New()
	ctx := context.Background()

	untrusted, untrustedHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	_, credKeyHandle, err := identity.CreatePurposeKey(v, untrusted.Identifier(), untrustedHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	cred, err := identity.IssueCredential(v, credKeyHandle, subject.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)

	trustedAuthority, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	histories := memory.NewChangeHistoryRepository()
	require.NoError(t, histories.Put(ctx, trustedAuthority.Identifier(), trustedAuthority.ChangeHistory()))
	purposeKeys := memory.NewPurposeKeysRepository()

	verifier := &trust.AuthorityVerifier{
		Vault:       v,
		Histories:   histories,
		PurposeKeys: purposeKeys,
		Authorities: []identity.Identifier{trustedAuthority.Identifier()},
	}

	_, err = verifier.Verify(ctx, cred, subject.Identifier(), time.Now())
	assert.Error(t, err)
}

func TestNewAuthorityVerifierUsesTrustContextAuthorities(t *testing.T) {
	v := vault.New()
	ctx := context.Background()

	authority, authorityHandle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	credKeyAttest, credKeyHandle, err := identity.CreatePurposeKey(v, authority.Identifier(), authorityHandle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)

	subject, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	cred, err := identity.IssueCredential(v, credKeyHandle, subject.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)

	histories := memory.NewChangeHistoryRepository()
	require.NoError(t, histories.Put(ctx, authority.Identifier(), authority.ChangeHistory()))
	purposeKeys := memory.NewPurposeKeysRepository()
	require.NoError(t, purposeKeys.Put(ctx, authority.Identifier(), identity.PurposeCredentials, credKeyAttest))

	tc := trust.TrustContext{ID: "authority-1", Authorities: []identity.Identifier{authority.Identifier()}}
	verifier := trust.NewAuthorityVerifier(tc, v, histories, purposeKeys)

	_, err = verifier.Verify(ctx, cred, subject.Identifier(), time.Now())
	assert.NoError(t, err)
}
