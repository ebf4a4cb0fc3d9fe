package securechannel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/securechannel"
	"github.com/ockam/ockam/pkg/vault"
)

// collectorWorker records every message it receives, for tests that need
// to observe what comes out the far side of a channel.
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
	w := &collectorWorker{received: received}
	require.NoError(t, nd.StartWorker(context.Background(), node.AddressSet{addr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}))
	return received
}

func TestCreateSecureChannelRoundTripDeliversPlaintext(t *testing.T) {
	v := vault.New()
	initiator := newParty(t, v)
	responder := newParty(t, v)
	nd := node.NewNode()
	ctx := context.Background()

	listenAddr := node.GenerateAddress("listener")
	require.NoError(t, securechannel.CreateSecureChannelListener(ctx, nd, listenAddr, responder.config(v), ""))

	addrs, err := securechannel.CreateSecureChannel(ctx, nd, node.Route{listenAddr}, initiator.config(v), "")
	require.NoError(t, err)

	destAddr := node.GenerateAddress("dest")
	received := mustStartCollector(t, nd, destAddr)
	nd.FlowControl().AddConsumer(addrs.FlowControlID, destAddr)

	err = nd.Router().Route(ctx, node.LocalMessage{
		Payload: []byte("hello over the channel"),
		Onward:  node.Route{addrs.Encryptor, destAddr},
		Return:  node.Route{"test-origin"},
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, []byte("hello over the channel"), msg.Payload)
		peerID, ok := msg.Identity()
		require.True(t, ok)
		assert.Equal(t, initiator.id.Identifier(), peerID)
		fcID, ok := msg.FlowControlID()
		require.True(t, ok)
		assert.NotEmpty(t, fcID)
	case <-time.After(2 * time.Second):
		t.Fatal("destination never received the tunneled message")
	}
}

func TestDecryptBlobCannotOpenFrameSealedByOwnChannel(t *testing.T) {
	v := vault.New()
	initiator := newParty(t, v)
	responder := newParty(t, v)
	nd := node.NewNode()
	ctx := context.Background()

	listenAddr := node.GenerateAddress("listener")
	require.NoError(t, securechannel.CreateSecureChannelListener(ctx, nd, listenAddr, responder.config(v), ""))
	initAddrs, err := securechannel.CreateSecureChannel(ctx, nd, node.Route{listenAddr}, initiator.config(v), "")
	require.NoError(t, err)

	// The responder's four addresses aren't returned by
	// CreateSecureChannelListener, so this drives both legs through the
	// one channel instance CreateSecureChannel gives back: seal on the
	// initiator's encryptor_api (its sendKey), then try to open the same
	// frame on the initiator's own decryptor_api (its recvKey). The two
	// keys differ, so a channel cannot read back what it sealed itself.
	frame, err := securechannel.EncryptBlob(ctx, nd, initAddrs, []byte("sealed out of band"), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, frame.Ciphertext)

	_, err = securechannel.DecryptBlob(ctx, nd, initAddrs, frame, 0)
	require.Error(t, err, "a channel's own decryptor_api uses the peer's recvKey, not its own sendKey")
	assert.ErrorIs(t, err, ockamerror.ErrInvalidTag)
}

func TestCreateSecureChannelRejectsUntrustedResponder(t *testing.T) {
	v := vault.New()
	initiator := newParty(t, v)
	responder := newParty(t, v)
	stranger := newParty(t, v)
	nd := node.NewNode()
	ctx := context.Background()

	listenAddr := node.GenerateAddress("listener")
	require.NoError(t, securechannel.CreateSecureChannelListener(ctx, nd, listenAddr, responder.config(v), ""))

	initCfg := initiator.config(v)
	initCfg.TrustPolicy = securechannel.TrustIdentifier(stranger.id.Identifier())

	_, err := securechannel.CreateSecureChannel(ctx, nd, node.Route{listenAddr}, initCfg, "")
	require.Error(t, err)
}

func TestCreateSecureChannelEncryptorAPIRepliesWithSessionInfo(t *testing.T) {
	v := vault.New()
	initiator := newParty(t, v)
	responder := newParty(t, v)
	nd := node.NewNode()
	ctx := context.Background()

	listenAddr := node.GenerateAddress("listener")
	require.NoError(t, securechannel.CreateSecureChannelListener(ctx, nd, listenAddr, responder.config(v), ""))
	addrs, err := securechannel.CreateSecureChannel(ctx, nd, node.Route{listenAddr}, initiator.config(v), "")
	require.NoError(t, err)

	replyAddr := node.GenerateAddress("reply")
	received := mustStartCollector(t, nd, replyAddr)

	require.NoError(t, nd.Router().Route(ctx, node.LocalMessage{
		Onward: node.Route{addrs.EncryptorAPI},
		Return: node.Route{replyAddr},
	}))

	select {
	case msg := <-received:
		assert.NotEmpty(t, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("never received session info reply")
	}
}
