package securechannel

import (
	"context"
	"fmt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
)

// TrustPolicy decides whether a handshake's peer is acceptable, after
// its identity proof has already cryptographically verified. A
// rejection aborts the handshake with ErrSecureChannelTrustCheckFailed
// — the peer is never told why.
type TrustPolicy interface {
	IsTrusted(ctx context.Context, peer identity.Identifier, peerKey vault.PublicKey) bool
}

// TrustPolicyFunc adapts a function to TrustPolicy.
type TrustPolicyFunc func(ctx context.Context, peer identity.Identifier, peerKey vault.PublicKey) bool

func (f TrustPolicyFunc) IsTrusted(ctx context.Context, peer identity.Identifier, peerKey vault.PublicKey) bool {
	return f(ctx, peer, peerKey)
}

// TrustEveryone accepts any peer whose identity proof verified. Suitable
// only when the application layer (e.g. credential-gated ABAC) does the
// real authorization — trust (who is this peer) and authorization
// (what is this peer allowed to do) are separate checks.
var TrustEveryone TrustPolicy = TrustPolicyFunc(func(context.Context, identity.Identifier, vault.PublicKey) bool {
	return true
})

// TrustIdentifier accepts only the one named identifier.
func TrustIdentifier(want identity.Identifier) TrustPolicy {
	return TrustPolicyFunc(func(_ context.Context, peer identity.Identifier, _ vault.PublicKey) bool {
		return peer == want
	})
}

// TrustMultiIdentifiers accepts any identifier in the given set.
func TrustMultiIdentifiers(allowed ...identity.Identifier) TrustPolicy {
	set := make(map[identity.Identifier]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	return TrustPolicyFunc(func(_ context.Context, peer identity.Identifier, _ vault.PublicKey) bool {
		return set[peer]
	})
}

// TrustPublicKey accepts a peer whose latest primary public key matches
// want exactly, for pinning a channel to a specific key generation
// rather than to an identifier that may survive rotation.
func TrustPublicKey(want vault.PublicKey) TrustPolicy {
	return TrustPolicyFunc(func(_ context.Context, _ identity.Identifier, peerKey vault.PublicKey) bool {
		return peerKey.Scheme == want.Scheme && vault.ConstantTimeEqual(peerKey.Bytes, want.Bytes)
	})
}

// TrustContext defers the accept/reject decision to an externally
// supplied callback with access to ctx — e.g. a policy that consults a
// repository or an enrollment authority at handshake time rather than
// working from a fixed allow-list baked in at channel-creation time.
type TrustContext struct {
	Check func(ctx context.Context, peer identity.Identifier, peerKey vault.PublicKey) (bool, error)
}

func (tc TrustContext) IsTrusted(ctx context.Context, peer identity.Identifier, peerKey vault.PublicKey) bool {
	if tc.Check == nil {
		return false
	}
	ok, err := tc.Check(ctx, peer, peerKey)
	return err == nil && ok
}

// checkTrust runs policy and turns a rejection into the wire-visible
// sentinel error, never leaking the reason to the caller's peer.
func checkTrust(ctx context.Context, policy TrustPolicy, peer identity.Identifier, peerKey vault.PublicKey) error {
	if policy == nil {
		policy = TrustEveryone
	}
	if !policy.IsTrusted(ctx, peer, peerKey) {
		return fmt.Errorf("securechannel: %w: peer %s is not trusted", ockamerror.ErrSecureChannelTrustCheckFailed, peer)
	}
	return nil
}
