package trust_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/repository/memory"
	"github.com/ockam/ockam/pkg/trust"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// presentMessageForTest mirrors the unexported presentMessage wire
// shape; presentResponseForTest mirrors presentResponse.
type presentMessageForTest struct {
	Credential *identity.Credential `cbor:"1,keyasint"`
}

type presentResponseForTest struct {
	Credential *identity.Credential `cbor:"1,keyasint,omitempty"`
	Error      string               `cbor:"2,keyasint,omitempty"`
}

func TestServerWorkerAcceptsCredentialAndStoresAttributes(t *testing.T) {
	v := vault.New()
	ctx := context.Background()
	nd := node.NewNode()

	authority, authorityAttest, credKeyHandle := newIssuerIdentity(t, v)

	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	cred, err := identity.IssueCredential(v, credKeyHandle, peer.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)

	histories := memory.NewChangeHistoryRepository()
	require.NoError(t, histories.Put(ctx, authority.Identifier(), authority.ChangeHistory()))
	purposeKeys := memory.NewPurposeKeysRepository()
	require.NoError(t, purposeKeys.Put(ctx, authority.Identifier(), identity.PurposeCredentials, authorityAttest))
	verifier := &trust.AuthorityVerifier{Vault: v, Histories: histories, PurposeKeys: purposeKeys, Authorities: []identity.Identifier{authority.Identifier()}}

	attrsRepo := memory.NewIdentityAttributesRepository()

	sw := trust.NewServerWorker(trust.ServerConfig{
		Verifier:   verifier,
		Attributes: attrsRepo,
		NodeName:   "node-a",
	})
	serverAddr := node.GenerateAddress("credentials_server")
	require.NoError(t, nd.StartWorker(ctx, node.AddressSet{serverAddr}, sw, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	payload, err := wireformat.Marshal(presentMessageForTest{Credential: cred})
	require.NoError(t, err)
	msg := node.LocalMessage{
		Payload: payload,
		Onward:  node.Route{serverAddr},
		Return:  node.Route{replyAddr},
	}.WithLocalInfo(node.IdentitySecureChannelLocalInfo{SecureChannelIdentifier: peer.Identifier()})
	require.NoError(t, nd.Router().Route(ctx, msg))

	select {
	case resp := <-received:
		var decoded presentResponseForTest
		require.NoError(t, wireformat.Unmarshal(resp.Payload, &decoded))
		assert.Empty(t, decoded.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("never received present response")
	}

	entry, err := attrsRepo.Get(ctx, "node-a", peer.Identifier())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("edge"), entry.Attributes["role"])
}

func TestServerWorkerRejectsCredentialFromUntrustedAuthority(t *testing.T) {
	v := vault.New()
	ctx := context.Background()
	nd := node.NewNode()

	_, _, credKeyHandle := newIssuerIdentity(t, v)
	trustedAuthority, _, _ := newIssuerIdentity(t, v)

	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	cred, err := identity.IssueCredential(v, credKeyHandle, peer.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)

	histories := memory.NewChangeHistoryRepository()
	require.NoError(t, histories.Put(ctx, trustedAuthority.Identifier(), trustedAuthority.ChangeHistory()))
	purposeKeys := memory.NewPurposeKeysRepository()
	verifier := &trust.AuthorityVerifier{Vault: v, Histories: histories, PurposeKeys: purposeKeys, Authorities: []identity.Identifier{trustedAuthority.Identifier()}}

	attrsRepo := memory.NewIdentityAttributesRepository()
	sw := trust.NewServerWorker(trust.ServerConfig{Verifier: verifier, Attributes: attrsRepo, NodeName: "node-a"})
	serverAddr := node.GenerateAddress("credentials_server")
	require.NoError(t, nd.StartWorker(ctx, node.AddressSet{serverAddr}, sw, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	payload, err := wireformat.Marshal(presentMessageForTest{Credential: cred})
	require.NoError(t, err)
	msg := node.LocalMessage{
		Payload: payload,
		Onward:  node.Route{serverAddr},
		Return:  node.Route{replyAddr},
	}.WithLocalInfo(node.IdentitySecureChannelLocalInfo{SecureChannelIdentifier: peer.Identifier()})
	require.NoError(t, nd.Router().Route(ctx, msg))

	select {
	case resp := <-received:
		var decoded presentResponseForTest
		require.NoError(t, wireformat.Unmarshal(resp.Payload, &decoded))
		assert.NotEmpty(t, decoded.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("never received present response")
	}

	_, err = attrsRepo.Get(ctx, "node-a", peer.Identifier())
	assert.Error(t, err)
}

func TestServerWorkerMutualPresentation(t *testing.T) {
	v := vault.New()
	ctx := context.Background()
	nd := node.NewNode()

	authority, authorityAttest, credKeyHandle := newIssuerIdentity(t, v)
	peer, _, err := identity.CreateIdentity(v, time.Hour)
	require.NoError(t, err)
	cred, err := identity.IssueCredential(v, credKeyHandle, peer.Identifier(), map[string][]byte{"role": []byte("edge")}, time.Hour)
	require.NoError(t, err)
	serverOwnCred, err := identity.IssueCredential(v, credKeyHandle, authority.Identifier(), map[string][]byte{"role": []byte("server")}, time.Hour)
	require.NoError(t, err)

	histories := memory.NewChangeHistoryRepository()
	require.NoError(t, histories.Put(ctx, authority.Identifier(), authority.ChangeHistory()))
	purposeKeys := memory.NewPurposeKeysRepository()
	require.NoError(t, purposeKeys.Put(ctx, authority.Identifier(), identity.PurposeCredentials, authorityAttest))
	verifier := &trust.AuthorityVerifier{Vault: v, Histories: histories, PurposeKeys: purposeKeys, Authorities: []identity.Identifier{authority.Identifier()}}

	sw := trust.NewServerWorker(trust.ServerConfig{
		Verifier:         verifier,
		Attributes:       memory.NewIdentityAttributesRepository(),
		NodeName:         "node-a",
		MutualCredential: serverOwnCred,
	})
	serverAddr := node.GenerateAddress("credentials_server")
	require.NoError(t, nd.StartWorker(ctx, node.AddressSet{serverAddr}, sw, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	payload, err := wireformat.Marshal(presentMessageForTest{Credential: cred})
	require.NoError(t, err)
	msg := node.LocalMessage{
		Payload: payload,
		Onward:  node.Route{serverAddr},
		Return:  node.Route{replyAddr},
	}.WithLocalInfo(node.IdentitySecureChannelLocalInfo{SecureChannelIdentifier: peer.Identifier()})
	require.NoError(t, nd.Router().Route(ctx, msg))

	select {
	case resp := <-received:
		var decoded presentResponseForTest
		require.NoError(t, wireformat.Unmarshal(resp.Payload, &decoded))
		require.Empty(t, decoded.Error)
		require.NotNil(t, decoded.Credential)
		assert.Equal(t, authority.Identifier(), decoded.Credential.Subject())
	case <-time.After(2 * time.Second):
		t.Fatal("never received present response")
	}
}
