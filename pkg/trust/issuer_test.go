package trust_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/trust"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// collectorWorker records the single reply it receives, for tests that
// drive an issuer or server worker directly through the router.
type collectorWorker struct {
	node.NoopLifecycle
	received chan node.LocalMessage
}

func (w *collectorWorker) Initialize(_ context.Context, _ *node.Context) error { return nil }

func (w *collectorWorker) HandleMessage(_ context.Context, msg node.LocalMessage) error {
	w.received <- msg
	return nil
}

func mustStartCollector(t *testing.T, nd *node.Node, addr node.Address) chan node.LocalMessage {
	t.Helper()
	received := make(chan node.LocalMessage, 4)
	require.NoError(t, nd.StartWorker(context.Background(), node.AddressSet{addr}, &collectorWorker{received: received}, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))
	return received
}

func newIssuerIdentity(t *testing.T, v vault.Vault) (*identity.Identity, *identity.PurposeKeyAttestation, vault.Handle) {
	t.Helper()
	issuer, handle, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	attest, credHandle, err := identity.CreatePurposeKey(v, issuer.Identifier(), handle, identity.PurposeCredentials, time.Hour)
	require.NoError(t, err)
	return issuer, attest, credHandle
}

func TestIssuerWorkerIssuesCredentialForEnrolledPeer(t *testing.T) {
	v := vault.New()
	ctx := context.Background()
	nd := node.NewNode()

	issuer, _, credHandle := newIssuerIdentity(t, v)
	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	w := trust.NewIssuerWorker(trust.IssuerConfig{
		Vault:                  v,
		IssuerIdentifier:       issuer.Identifier(),
		IssuerPurposeKeyHandle: credHandle,
		Enrolled:               trust.StaticEnrolledAttributes{peer.Identifier(): {"role": []byte("edge")}},
	})
	issuerAddr := node.GenerateAddress("issuer")
	require.NoError(t, nd.StartWorker(ctx, node.AddressSet{issuerAddr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	payload, err := wireformat.Marshal(struct{}{})
	require.NoError(t, err)

	msg := node.LocalMessage{
		Payload: payload,
		Onward:  node.Route{issuerAddr},
		Return:  node.Route{replyAddr},
	}.WithLocalInfo(node.IdentitySecureChannelLocalInfo{SecureChannelIdentifier: peer.Identifier()})
	require.NoError(t, nd.Router().Route(ctx, msg))

	select {
	case resp := <-received:
		var decoded issuerResponseForTest
		require.NoError(t, wireformat.Unmarshal(resp.Payload, &decoded))
		require.Empty(t, decoded.Error)
		require.NotNil(t, decoded.Credential)
		assert.Equal(t, peer.Identifier(), decoded.Credential.Subject())
	case <-time.After(2 * time.Second):
		t.Fatal("never received issuer response")
	}
}

func TestIssuerWorkerDropsUnauthenticatedRequest(t *testing.T) {
	v := vault.New()
	ctx := context.Background()
	nd := node.NewNode()

	issuer, _, credHandle := newIssuerIdentity(t, v)
	w := trust.NewIssuerWorker(trust.IssuerConfig{
		Vault:                  v,
		IssuerIdentifier:       issuer.Identifier(),
		IssuerPurposeKeyHandle: credHandle,
		Enrolled:               trust.StaticEnrolledAttributes{},
	})
	issuerAddr := node.GenerateAddress("issuer")
	require.NoError(t, nd.StartWorker(ctx, node.AddressSet{issuerAddr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	payload, err := wireformat.Marshal(struct{}{})
	require.NoError(t, err)
	require.NoError(t, nd.Router().Route(ctx, node.LocalMessage{
		Payload: payload,
		Onward:  node.Route{issuerAddr},
		Return:  node.Route{replyAddr},
	}))

	select {
	case <-received:
		t.Fatal("issuer must not reply to a request with no stamped identity")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestIssuerWorkerRateLimitsPerPeer(t *testing.T) {
	v := vault.New()
	ctx := context.Background()
	nd := node.NewNode()

	issuer, _, credHandle := newIssuerIdentity(t, v)
	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)

	w := trust.NewIssuerWorker(trust.IssuerConfig{
		Vault:                  v,
		IssuerIdentifier:       issuer.Identifier(),
		IssuerPurposeKeyHandle: credHandle,
		Enrolled:               trust.StaticEnrolledAttributes{peer.Identifier(): {"role": []byte("edge")}},
		RateLimit:              rate.Limit(0.001),
		RateBurst:              1,
	})
	issuerAddr := node.GenerateAddress("issuer")
	require.NoError(t, nd.StartWorker(ctx, node.AddressSet{issuerAddr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	payload, err := wireformat.Marshal(struct{}{})
	require.NoError(t, err)
	send := func() {
		msg := node.LocalMessage{
			Payload: payload,
			Onward:  node.Route{issuerAddr},
			Return:  node.Route{replyAddr},
		}.WithLocalInfo(node.IdentitySecureChannelLocalInfo{SecureChannelIdentifier: peer.Identifier()})
		require.NoError(t, nd.Router().Route(ctx, msg))
	}

	send()
	var first issuerResponseForTest
	select {
	case resp := <-received:
		require.NoError(t, wireformat.Unmarshal(resp.Payload, &first))
	case <-time.After(2 * time.Second):
		t.Fatal("never received first issuer response")
	}
	require.Empty(t, first.Error)

	send()
	var second issuerResponseForTest
	select {
	case resp := <-received:
		require.NoError(t, wireformat.Unmarshal(resp.Payload, &second))
	case <-time.After(2 * time.Second):
		t.Fatal("never received second issuer response")
	}
	assert.NotEmpty(t, second.Error)
}

// issuerResponseForTest mirrors the unexported issuerResponse wire
// shape so external tests can decode a reply without reaching into
// package internals.
type issuerResponseForTest struct {
	Credential *identity.Credential `cbor:"1,keyasint,omitempty"`
	Error      string               `cbor:"2,keyasint,omitempty"`
}
