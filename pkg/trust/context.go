package trust

import (
	"context"
	"fmt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/repository"
)

// CredentialRetriever fetches a credential for subject. Implementations
// differ in where the credential comes from: Remote asks a live
// credentials-issuer over an established secure channel; Local reads
// whatever is already cached in the repository. Both satisfy the same
// interface so a TrustContext can be built with either without its
// callers caring which.
type CredentialRetriever interface {
	Retrieve(ctx context.Context, subject identity.Identifier) (*identity.Credential, error)
}

// TrustContext bundles the set of authorities an application accepts
// credentials from, how to fetch a fresh credential when one is needed,
// and a debug identifier. This is a
// distinct concept from securechannel.TrustContext (a TrustPolicy
// implementation that defers a single handshake's accept/reject
// decision to a callback): this TrustContext is the application-level
// bundle that decides what that callback, or an AuthorityVerifier,
// checks against.
type TrustContext struct {
	ID          string
	Authorities []identity.Identifier
	Retriever   CredentialRetriever
}

// LocalCredentialRetriever serves credentials already present in a
// repository.CredentialsRepository cache, never making a network round
// trip. Suited to a member that enrolled once and expects to keep
// presenting the same credential until it nears expiry.
type LocalCredentialRetriever struct {
	Cache repository.CredentialsRepository
}

// Retrieve satisfies CredentialRetriever.
func (r *LocalCredentialRetriever) Retrieve(ctx context.Context, subject identity.Identifier) (*identity.Credential, error) {
	cred, err := r.Cache.Get(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("trust: reading cached credential: %w", err)
	}
	if cred == nil {
		return nil, fmt.Errorf("trust: %w: no cached credential for %s", ockamerror.ErrNotFound, subject)
	}
	return cred, nil
}
