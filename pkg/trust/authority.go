package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/vault"
)

// AuthorityVerifier implements securechannel.CredentialVerifier against
// a fixed set of trusted authority identifiers, resolving each
// authority's change history and credentials purpose key from the
// repositories rather than requiring the caller to hold them in memory
// — the same shape as a CertAuthority that resolves a chain back to a
// durably stored root rather than trusting a caller-supplied
// certificate at face value (pkg/security/ca.go).
//
// A credential names only its subject, not its issuer, so Verify tries
// every configured authority in order and returns the first one whose
// purpose-key attestation and signature check out.
type AuthorityVerifier struct {
	Vault       vault.Vault
	Histories   repository.ChangeHistoryRepository
	PurposeKeys repository.PurposeKeysRepository
	Authorities []identity.Identifier
}

// NewAuthorityVerifier builds an AuthorityVerifier from a TrustContext's
// authority set.
func NewAuthorityVerifier(tc TrustContext, v vault.Vault, histories repository.ChangeHistoryRepository, purposeKeys repository.PurposeKeysRepository) *AuthorityVerifier {
	return &AuthorityVerifier{
		Vault:       v,
		Histories:   histories,
		PurposeKeys: purposeKeys,
		Authorities: tc.Authorities,
	}
}

// Verify satisfies securechannel.CredentialVerifier.
func (a *AuthorityVerifier) Verify(ctx context.Context, cred *identity.Credential, subject identity.Identifier, at time.Time) (map[string][]byte, error) {
	if len(a.Authorities) == 0 {
		return nil, fmt.Errorf("trust: %w: no trusted authorities configured", ockamerror.ErrCredentialInvalid)
	}

	var lastErr error
	for _, authority := range a.Authorities {
		history, err := a.Histories.Get(ctx, authority)
		if err != nil || history == nil {
			lastErr = fmt.Errorf("trust: authority %s: change history unavailable", authority)
			continue
		}
		attestation, err := a.PurposeKeys.Get(ctx, authority, identity.PurposeCredentials)
		if err != nil || attestation == nil {
			lastErr = fmt.Errorf("trust: authority %s: credentials purpose key unavailable", authority)
			continue
		}

		attrs, err := identity.VerifyCredential(a.Vault, history, authority, attestation, cred, subject, at)
		if err == nil {
			return attrs, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("trust: %w: no trusted authority attests this credential (last: %v)", ockamerror.ErrCredentialInvalid, lastErr)
}
