package securechannel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/securechannel"
	"github.com/ockam/ockam/pkg/vault"
)

func TestTrustEveryoneAlwaysAccepts(t *testing.T) {
	v := vault.New()
	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	assert.True(t, securechannel.TrustEveryone.IsTrusted(context.Background(), id.Identifier(), id.LatestPublicKey()))
}

func TestTrustIdentifierAcceptsOnlyNamedPeer(t *testing.T) {
	v := vault.New()
	allowed, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	other, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	policy := securechannel.TrustIdentifier(allowed.Identifier())
	assert.True(t, policy.IsTrusted(context.Background(), allowed.Identifier(), allowed.LatestPublicKey()))
	assert.False(t, policy.IsTrusted(context.Background(), other.Identifier(), other.LatestPublicKey()))
}

func TestTrustMultiIdentifiers(t *testing.T) {
	v := vault.New()
	a, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	b, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	c, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	policy := securechannel.TrustMultiIdentifiers(a.Identifier(), b.Identifier())
	assert.True(t, policy.IsTrusted(context.Background(), a.Identifier(), vault.PublicKey{}))
	assert.True(t, policy.IsTrusted(context.Background(), b.Identifier(), vault.PublicKey{}))
	assert.False(t, policy.IsTrusted(context.Background(), c.Identifier(), vault.PublicKey{}))
}

func TestTrustPublicKeyPinsExactKey(t *testing.T) {
	v := vault.New()
	a, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	b, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	policy := securechannel.TrustPublicKey(a.LatestPublicKey())
	assert.True(t, policy.IsTrusted(context.Background(), a.Identifier(), a.LatestPublicKey()))
	assert.False(t, policy.IsTrusted(context.Background(), b.Identifier(), b.LatestPublicKey()))
}

func TestTrustContextDefersToCallback(t *testing.T) {
	v := vault.New()
	id, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	var seenPeer identity.Identifier
	policy := securechannel.TrustContext{
		Check: func(_ context.Context, peer identity.Identifier, _ vault.PublicKey) (bool, error) {
			seenPeer = peer
			return peer == id.Identifier(), nil
		},
	}
	assert.True(t, policy.IsTrusted(context.Background(), id.Identifier(), id.LatestPublicKey()))
	assert.Equal(t, id.Identifier(), seenPeer)
}

func TestTrustContextWithNoCheckRejects(t *testing.T) {
	var policy securechannel.TrustContext
	assert.False(t, policy.IsTrusted(context.Background(), identity.Identifier{}, vault.PublicKey{}))
}
