package securechannel

import (
	"context"
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// sessionInfo is what encryptor_api reports back to a local caller that
// wants read-only introspection of an established channel (the
// channel's fourth address), without being able to touch key material
// or force a re-handshake.
type sessionInfo struct {
	PeerIdentifier identity.Identifier `cbor:"1,keyasint"`
	Attributes     map[string][]byte  `cbor:"2,keyasint"`
	FlowControlID  string             `cbor:"3,keyasint"`
}

// decryptorAPIWorker serves two local-only request shapes: a
// decryptBlobRequest (open a frame synchronously and reply with the
// plaintext) and a credentialExchangeMessage (re-verify a credential at
// any point during Running). Unlike decryptor_remote, this address is
// never reachable from the wire side of the channel.
type decryptorAPIWorker struct {
	node.NoopLifecycle
	state *channelState
	ctrl  *node.Context
}

func (w *decryptorAPIWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *decryptorAPIWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	var blobReq decryptBlobRequest
	if err := wireformat.Unmarshal(msg.Payload, &blobReq); err == nil && len(blobReq.Frame.Ciphertext) > 0 {
		return w.handleDecryptBlob(ctx, blobReq, msg.Return)
	}
	return w.handleCredentialExchange(ctx, msg)
}

// handleDecryptBlob opens a frame the caller received out of band
// (i.e. not over this channel's own decryptor_remote/transport route),
// sharing the channel's recvKey and replay window with every other
// frame it has opened.
func (w *decryptorAPIWorker) handleDecryptBlob(ctx context.Context, req decryptBlobRequest, returnRoute node.Route) error {
	_, replyRoute, ok := returnRoute.Next()
	if !ok || len(replyRoute) == 0 {
		return nil
	}

	cs := w.state
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return w.replyDecryptError(ctx, replyRoute, "channel has not finished handshaking")
	}
	if !cs.recvWindow.wouldAccept(req.Frame.Counter) {
		cs.mu.Unlock()
		return w.replyDecryptError(ctx, replyRoute, "replayed or stale frame")
	}
	nonce := counterNonce(req.Frame.Counter)
	plaintext, err := cs.v.AEADOpen(cs.recvKey, req.Frame.Ciphertext, nonce[:], counterAAD(req.Frame.Counter))
	if err != nil {
		cs.mu.Unlock()
		return w.replyDecryptError(ctx, replyRoute, "authentication failed")
	}
	cs.recvWindow.record(req.Frame.Counter)
	cs.mu.Unlock()

	encoded, err := wireformat.Marshal(decryptBlobResponse{Plaintext: plaintext})
	if err != nil {
		return fmt.Errorf("securechannel: encoding decrypt-blob response: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: replyRoute})
}

func (w *decryptorAPIWorker) replyDecryptError(ctx context.Context, replyRoute node.Route, reason string) error {
	encoded, err := wireformat.Marshal(decryptBlobResponse{Error: reason})
	if err != nil {
		return fmt.Errorf("securechannel: encoding decrypt-blob error response: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: replyRoute})
}

func (w *decryptorAPIWorker) handleCredentialExchange(ctx context.Context, msg node.LocalMessage) error {
	cs := w.state
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		cs.log.Warn().Msg("dropping credential exchange message before the channel finished handshaking")
		return nil
	}
	verifier := cs.cfg.CredentialVerifier
	peer := cs.peerIdentifier
	at := cs.cfg.clock()
	cs.mu.Unlock()

	if verifier == nil {
		cs.log.Warn().Msg("dropping credential exchange message: no credential verifier configured")
		return nil
	}

	var exch credentialExchangeMessage
	if err := wireformat.Unmarshal(msg.Payload, &exch); err != nil {
		return fmt.Errorf("securechannel: decoding credential exchange message: %w", err)
	}
	if exch.Credential == nil {
		return nil
	}

	attrs, err := verifier.Verify(ctx, exch.Credential, peer, at)
	if err != nil {
		cs.log.Warn().Err(err).Stringer("peer", peer).Msg("rejecting re-presented credential")
		return nil
	}

	cs.mu.Lock()
	cs.peerAttributes = attrs
	cs.storeAttributes(ctx, peer, attrs)
	cs.mu.Unlock()

	cs.log.Info().Stringer("peer", peer).Msg("updated peer attributes from credential exchange")
	return nil
}

// encryptorAPIWorker serves two local-only request shapes: an
// encryptBlobRequest (seal a buffer synchronously and reply with the
// frame) and a bare lookup (reply with a snapshot of the channel's
// session info). A request with no payload at all is always treated as
// a session-info lookup.
type encryptorAPIWorker struct {
	node.NoopLifecycle
	state *channelState
	ctrl  *node.Context
}

func (w *encryptorAPIWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *encryptorAPIWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	// As at every other worker, the router has already prepended this
	// address to Return; the real path back is the remainder.
	_, replyRoute, ok := msg.Return.Next()
	if !ok || len(replyRoute) == 0 {
		return nil
	}

	if len(msg.Payload) > 0 {
		return w.handleEncryptBlob(ctx, msg.Payload, replyRoute)
	}
	return w.handleSessionInfo(ctx, replyRoute)
}

func (w *encryptorAPIWorker) handleSessionInfo(ctx context.Context, replyRoute node.Route) error {
	cs := w.state
	cs.mu.Lock()
	info := sessionInfo{
		PeerIdentifier: cs.peerIdentifier,
		Attributes:     cs.peerAttributes,
		FlowControlID:  cs.flowControlID,
	}
	cs.mu.Unlock()

	encoded, err := wireformat.Marshal(info)
	if err != nil {
		return fmt.Errorf("securechannel: encoding session info: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: replyRoute})
}

// handleEncryptBlob seals req.Plaintext under the channel's own sendKey
// and advances its sendCounter exactly as encryptorWorker would for a
// tunneled message — the two share one counter sequence, so a blob
// sealed here can never collide with a tunneled message's nonce.
func (w *encryptorAPIWorker) handleEncryptBlob(ctx context.Context, payload []byte, replyRoute node.Route) error {
	var req encryptBlobRequest
	if err := wireformat.Unmarshal(payload, &req); err != nil {
		return w.replyEncryptError(ctx, replyRoute, fmt.Sprintf("decoding request: %v", err))
	}

	cs := w.state
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		return w.replyEncryptError(ctx, replyRoute, "channel has not finished handshaking")
	}
	counter, nonce, err := cs.sendCounter.next()
	if err != nil {
		cs.mu.Unlock()
		return w.replyEncryptError(ctx, replyRoute, err.Error())
	}
	ciphertext, err := cs.v.AEADSeal(cs.sendKey, req.Plaintext, nonce[:], counterAAD(counter))
	cs.mu.Unlock()
	if err != nil {
		return w.replyEncryptError(ctx, replyRoute, err.Error())
	}

	encoded, err := wireformat.Marshal(encryptBlobResponse{Frame: transportFrame{Counter: counter, Ciphertext: ciphertext}})
	if err != nil {
		return fmt.Errorf("securechannel: encoding encrypt-blob response: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: replyRoute})
}

func (w *encryptorAPIWorker) replyEncryptError(ctx context.Context, replyRoute node.Route, reason string) error {
	encoded, err := wireformat.Marshal(encryptBlobResponse{Error: reason})
	if err != nil {
		return fmt.Errorf("securechannel: encoding encrypt-blob error response: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: encoded, Onward: replyRoute})
}

// blobRequestTimeout bounds a synchronous EncryptBlob/DecryptBlob call,
// the same bounded-round-trip pattern as trust.RemoteCredentialRetriever.
const blobRequestTimeout = 30 * time.Second

// blobReplyWorker is the temporary reply address EncryptBlob/DecryptBlob
// spin up for the duration of a single request, the same
// start-temporary-worker-and-wait shape as trust.RemoteCredentialRetriever.
type blobReplyWorker struct {
	node.NoopLifecycle
	resultCh chan node.LocalMessage
}

func (w *blobReplyWorker) HandleMessage(_ context.Context, msg node.LocalMessage) error {
	w.resultCh <- msg
	return nil
}

func callBlobAPI(ctx context.Context, nd *node.Node, apiAddr node.Address, payload []byte) (node.LocalMessage, error) {
	replyAddr := node.GenerateAddress("blob_api_reply")
	resultCh := make(chan node.LocalMessage, 1)
	w := &blobReplyWorker{resultCh: resultCh}
	if err := nd.StartWorker(ctx, node.AddressSet{replyAddr}, w, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
	}); err != nil {
		return node.LocalMessage{}, fmt.Errorf("securechannel: starting blob reply worker: %w", err)
	}
	defer func() { _ = nd.StopWorker(context.Background(), replyAddr) }()

	if err := nd.Router().Route(ctx, node.LocalMessage{
		Payload: payload,
		Onward:  node.Route{apiAddr},
		Return:  node.Route{replyAddr},
	}); err != nil {
		return node.LocalMessage{}, fmt.Errorf("securechannel: sending blob request: %w", err)
	}

	select {
	case msg := <-resultCh:
		return msg, nil
	case <-ctx.Done():
		return node.LocalMessage{}, ctx.Err()
	}
}

// EncryptBlob synchronously seals plaintext through an established
// channel's encryptor_api. It shares the channel's own send counter
// with its tunneled-message traffic, so the returned frame's counter
// must be delivered to the peer alongside the ciphertext; the caller is
// responsible for getting it there out of band (this call never
// touches the network route to the peer itself). A zero or negative
// timeout falls back to blobRequestTimeout.
func EncryptBlob(ctx context.Context, nd *node.Node, addrs Addresses, plaintext []byte, timeout time.Duration) (transportFrame, error) {
	if timeout <= 0 {
		timeout = blobRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqPayload, err := wireformat.Marshal(encryptBlobRequest{Plaintext: plaintext})
	if err != nil {
		return transportFrame{}, fmt.Errorf("securechannel: encoding encrypt-blob request: %w", err)
	}
	msg, err := callBlobAPI(ctx, nd, addrs.EncryptorAPI, reqPayload)
	if err != nil {
		return transportFrame{}, err
	}
	var resp encryptBlobResponse
	if err := wireformat.Unmarshal(msg.Payload, &resp); err != nil {
		return transportFrame{}, fmt.Errorf("securechannel: decoding encrypt-blob response: %w", err)
	}
	if resp.Error != "" {
		return transportFrame{}, fmt.Errorf("securechannel: %w: %s", ockamerror.ErrInvalidArgument, resp.Error)
	}
	return resp.Frame, nil
}

// DecryptBlob synchronously opens a frame through an established
// channel's decryptor_api, sharing the channel's own recvKey and replay
// window with its tunneled-message traffic — a frame already opened
// through decryptor_remote cannot be opened again here. A zero or
// negative timeout falls back to blobRequestTimeout.
func DecryptBlob(ctx context.Context, nd *node.Node, addrs Addresses, frame transportFrame, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = blobRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqPayload, err := wireformat.Marshal(decryptBlobRequest{Frame: frame})
	if err != nil {
		return nil, fmt.Errorf("securechannel: encoding decrypt-blob request: %w", err)
	}
	msg, err := callBlobAPI(ctx, nd, addrs.DecryptorAPI, reqPayload)
	if err != nil {
		return nil, err
	}
	var resp decryptBlobResponse
	if err := wireformat.Unmarshal(msg.Payload, &resp); err != nil {
		return nil, fmt.Errorf("securechannel: decoding decrypt-blob response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("securechannel: %w: %s", ockamerror.ErrInvalidTag, resp.Error)
	}
	return resp.Plaintext, nil
}
