package securechannel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/ockamlog"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// Addresses is the four-address endpoint of one secure channel instance
//, all sharing one flow-control id so the node substrate
// can tell that every message on any of them was produced by this one
// channel.
type Addresses struct {
	DecryptorRemote node.Address
	DecryptorAPI    node.Address
	Encryptor       node.Address
	EncryptorAPI    node.Address

	// FlowControlID is this channel instance's shared producer/consumer
	// tag. A local worker must be registered as a consumer of it (see
	// node.FlowControlTable.AddConsumer) before Encryptor will accept
	// plaintext from it.
	FlowControlID string
}

func generateAddresses() Addresses {
	return Addresses{
		DecryptorRemote: node.GenerateAddress("decryptor_remote"),
		DecryptorAPI:    node.GenerateAddress("decryptor_api"),
		Encryptor:       node.GenerateAddress("encryptor"),
		EncryptorAPI:    node.GenerateAddress("encryptor_api"),
	}
}

// channelState is the single source of truth shared by a channel's four
// workers. Each worker's own mailbox already serializes its own
// HandleMessage calls; the mutex here serializes across the four of
// them, the same way a single cache guarded by one mutex stays
// consistent across several concurrent goroutines.
type channelState struct {
	mu sync.Mutex

	v    vault.Vault
	cfg  Config
	hs   *Handshake
	role Role

	running        bool
	sendKey        vault.Handle
	recvKey        vault.Handle
	sendCounter    sendNonce
	recvWindow     replayWindow
	peerIdentifier identity.Identifier
	peerPublicKey  vault.PublicKey
	peerAttributes map[string][]byte
	peerRoute      node.Route // route to the peer's decryptor_remote address

	addrs         Addresses
	flowControlID string
	attributes    repository.IdentityAttributesRepository
	nodeName      string

	log zerolog.Logger
}

func newChannelState(cfg Config, role Role, addrs Addresses, flowControlID string) *channelState {
	return &channelState{
		v:             cfg.Vault,
		cfg:           cfg,
		role:          role,
		addrs:         addrs,
		flowControlID: flowControlID,
		attributes:    cfg.AttributesStore,
		nodeName:      cfg.NodeName,
		log:           ockamlog.WithComponent("securechannel"),
	}
}

// adoptResult copies a completed handshake's Result into steady-state
// fields and persists any attributes verified in-handshake: attributes
// a credential attested are stored keyed by peer identifier, the same
// shape a later out-of-band credential exchange would update.
func (cs *channelState) adoptResult(ctx context.Context, result *Result) {
	cs.running = true
	cs.sendKey = result.SendKey
	cs.recvKey = result.ReceiveKey
	cs.peerIdentifier = result.PeerIdentifier
	cs.peerPublicKey = result.PeerPublicKey
	cs.peerAttributes = result.PeerAttributes

	cs.storeAttributes(ctx, result.PeerIdentifier, result.PeerAttributes)

	cs.log.Info().
		Stringer("peer", result.PeerIdentifier).
		Str("flow_control_id", cs.flowControlID).
		Msg("secure channel established")
}

func (cs *channelState) storeAttributes(ctx context.Context, subject identity.Identifier, attrs map[string][]byte) {
	if cs.attributes == nil || attrs == nil {
		return
	}
	entry := &repository.AttributesEntry{
		Attributes: attrs,
		AddedAt:    cs.cfg.clock(),
		AttestedBy: subject,
	}
	if err := cs.attributes.Put(ctx, cs.nodeName, subject, entry); err != nil {
		cs.log.Warn().Err(err).Msg("storing peer credential attributes failed")
	}
}

// decryptorRemoteWorker is the wire-facing half of the channel: it
// drives the remaining handshake steps until StateRunning, then decrypts
// every inbound transport frame and forwards the plaintext onward.
type decryptorRemoteWorker struct {
	node.NoopLifecycle
	state *channelState
	ctrl  *node.Context
}

func (w *decryptorRemoteWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *decryptorRemoteWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	cs := w.state
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.running {
		return w.handleHandshakeStep(ctx, msg)
	}
	return w.handleTransportFrame(ctx, msg)
}

func (w *decryptorRemoteWorker) handleHandshakeStep(ctx context.Context, msg node.LocalMessage) error {
	cs := w.state
	if cs.hs == nil || cs.hs.State() != StateReceiveMessage3 {
		cs.log.Warn().Msg("dropping message at decryptor_remote before handshake can accept it")
		return nil
	}
	if err := cs.hs.ProcessMessage3(ctx, msg.Payload); err != nil {
		cs.log.Warn().Err(err).Msg("secure channel handshake failed processing message 3")
		return nil
	}
	result, ok := cs.hs.Result()
	cs.hs = nil
	if ok {
		cs.adoptResult(ctx, result)
	}
	return nil
}

func (w *decryptorRemoteWorker) handleTransportFrame(ctx context.Context, msg node.LocalMessage) error {
	cs := w.state
	var frame transportFrame
	if err := wireformat.Unmarshal(msg.Payload, &frame); err != nil {
		cs.log.Warn().Err(err).Msg("dropping undecodable transport frame")
		return nil
	}

	if !cs.recvWindow.wouldAccept(frame.Counter) {
		cs.log.Warn().Uint64("counter", frame.Counter).Msg("dropping replayed or stale frame")
		return nil
	}

	nonce := counterNonce(frame.Counter)
	plaintext, err := cs.v.AEADOpen(cs.recvKey, frame.Ciphertext, nonce[:], counterAAD(frame.Counter))
	if err != nil {
		cs.log.Warn().Err(err).Msg("dropping frame that failed authentication")
		return nil
	}
	cs.recvWindow.record(frame.Counter)

	var tunneled tunneledMessage
	if err := wireformat.Unmarshal(plaintext, &tunneled); err != nil {
		cs.log.Warn().Err(err).Msg("dropping frame with undecodable plaintext")
		return nil
	}

	forwarded := node.LocalMessage{Payload: tunneled.Payload, Onward: tunneled.Onward, Return: tunneled.Return}.
		WithLocalInfo(node.IdentitySecureChannelLocalInfo{SecureChannelIdentifier: cs.peerIdentifier}).
		WithLocalInfo(node.FlowControlLocalInfo{FlowControlID: cs.flowControlID})

	if err := w.ctrl.Send(ctx, forwarded); err != nil {
		cs.log.Warn().Err(err).Msg("forwarding decrypted message failed")
	}
	return nil
}

// encryptorWorker is the local-facing half of the channel: application
// workers send it plaintext destined for the peer, and it seals and
// forwards each one as a transport frame.
type encryptorWorker struct {
	node.NoopLifecycle
	state *channelState
	ctrl  *node.Context
}

func (w *encryptorWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *encryptorWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	cs := w.state
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		cs.log.Warn().Msg("dropping message sent to encryptor before the channel finished handshaking")
		return nil
	}

	tunneled := tunneledMessage{Onward: msg.Onward, Return: msg.Return, Payload: msg.Payload}
	plaintext, err := wireformat.Marshal(tunneled)
	if err != nil {
		cs.mu.Unlock()
		return fmt.Errorf("securechannel: encoding tunneled message: %w", err)
	}

	counter, nonce, err := cs.sendCounter.next()
	if err != nil {
		cs.mu.Unlock()
		return err
	}
	ciphertext, err := cs.v.AEADSeal(cs.sendKey, plaintext, nonce[:], counterAAD(counter))
	if err != nil {
		cs.mu.Unlock()
		return fmt.Errorf("securechannel: sealing outbound message: %w", err)
	}
	peerRoute := cs.peerRoute
	cs.mu.Unlock()

	frameBytes, err := wireformat.Marshal(transportFrame{Counter: counter, Ciphertext: ciphertext})
	if err != nil {
		return fmt.Errorf("securechannel: encoding transport frame: %w", err)
	}
	return w.ctrl.Send(ctx, node.LocalMessage{Payload: frameBytes, Onward: peerRoute})
}

// startChannelWorkers registers the four workers for one channel
// instance under a dedicated flow-control id, so downstream access
// control can require that traffic actually passed through this
// channel rather than arriving from anywhere on the node.
func startChannelWorkers(ctx context.Context, nd *node.Node, cs *channelState, cluster string) error {
	// AllowAll here governs only whether a message reaches the wire-
	// facing and introspection mailboxes; the security boundary for
	// those is the handshake and the AEAD itself, not mailbox-level
	// access control — an attacker without the transport keys cannot
	// produce anything these workers will accept as a valid frame.
	flowOpts := node.StartOptions{
		Cluster:               cluster,
		FlowControlID:         cs.flowControlID,
		IncomingAccessControl: node.AllowAll,
		OutgoingAccessControl: node.AllowAll,
	}

	if err := nd.StartWorker(ctx, node.AddressSet{cs.addrs.DecryptorRemote}, &decryptorRemoteWorker{state: cs}, flowOpts); err != nil {
		return fmt.Errorf("securechannel: starting decryptor_remote: %w", err)
	}

	// Encryptor has no AEAD boundary protecting it — anything handed to
	// it is sealed and sent to the peer as if the local application
	// meant to say it. Only addresses the application has explicitly
	// admitted as consumers of this channel's flow-control id (see
	// node.FlowControlTable.AddConsumer) may reach it.
	encryptorOpts := node.StartOptions{
		Cluster:               cluster,
		FlowControlID:         cs.flowControlID,
		IncomingAccessControl: node.FlowControlConsumerAccessControl(cs.flowControlID, nd.FlowControl()),
		OutgoingAccessControl: node.AllowAll,
	}
	if err := nd.StartWorker(ctx, node.AddressSet{cs.addrs.Encryptor}, &encryptorWorker{state: cs}, encryptorOpts); err != nil {
		return fmt.Errorf("securechannel: starting encryptor: %w", err)
	}
	if err := nd.StartWorker(ctx, node.AddressSet{cs.addrs.DecryptorAPI}, &decryptorAPIWorker{state: cs}, flowOpts); err != nil {
		return fmt.Errorf("securechannel: starting decryptor_api: %w", err)
	}
	if err := nd.StartWorker(ctx, node.AddressSet{cs.addrs.EncryptorAPI}, &encryptorAPIWorker{state: cs}, flowOpts); err != nil {
		return fmt.Errorf("securechannel: starting encryptor_api: %w", err)
	}
	return nil
}

// CreateSecureChannelListener starts a worker at listenAddress that
// answers incoming handshake message 1s by spawning a fresh channel
// instance per initiator.
func CreateSecureChannelListener(ctx context.Context, nd *node.Node, listenAddress node.Address, cfg Config, cluster string) error {
	lw := &listenerWorker{nd: nd, cfg: cfg, cluster: cluster}
	return nd.StartWorker(ctx, node.AddressSet{listenAddress}, lw, node.StartOptions{
		Cluster:               cluster,
		IncomingAccessControl: node.AllowAll,
		OutgoingAccessControl: node.AllowAll,
	})
}

type listenerWorker struct {
	node.NoopLifecycle
	nd      *node.Node
	cfg     Config
	cluster string
	ctrl    *node.Context
}

func (w *listenerWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *listenerWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	// The router prepends this worker's own address to Return on every
	// hop, so the first entry here is always this
	// listener, not the sender — the real path back is the remainder.
	_, replyRoute, ok := msg.Return.Next()
	if !ok || len(replyRoute) == 0 {
		return fmt.Errorf("securechannel: %w: message 1 arrived with no return route", ockamerror.ErrInvalidArgument)
	}

	hs, err := NewResponderHandshake(w.cfg)
	if err != nil {
		return err
	}
	if err := hs.ProcessMessage1(msg.Payload); err != nil {
		return fmt.Errorf("securechannel: %w", err)
	}
	msg2, err := hs.BuildMessage2(ctx)
	if err != nil {
		return fmt.Errorf("securechannel: %w", err)
	}

	addrs := generateAddresses()
	flowControlID := string(node.GenerateAddress("flow"))
	addrs.FlowControlID = flowControlID
	cs := newChannelState(w.cfg, Responder, addrs, flowControlID)
	cs.hs = hs
	if err := startChannelWorkers(ctx, w.nd, cs, w.cluster); err != nil {
		return err
	}

	return w.ctrl.Send(ctx, node.LocalMessage{
		Payload: msg2,
		Onward:  replyRoute,
		Return:  node.Route{addrs.DecryptorRemote},
	})
}

// initiatorResult is delivered once the initiator side of a handshake
// reaches StateRunning or fails.
type initiatorResult struct {
	addrs Addresses
	err   error
}

type initiatorWorker struct {
	node.NoopLifecycle
	nd       *node.Node
	hs       *Handshake
	cfg      Config
	cluster  string
	resultCh chan initiatorResult
	ctrl     *node.Context
	selfAddr node.Address
}

func (w *initiatorWorker) Initialize(_ context.Context, ctrl *node.Context) error {
	w.ctrl = ctrl
	return nil
}

func (w *initiatorWorker) HandleMessage(ctx context.Context, msg node.LocalMessage) error {
	if err := w.hs.ProcessMessage2(ctx, msg.Payload); err != nil {
		w.fail(fmt.Errorf("securechannel: %w", err))
		return nil
	}

	// Same prepend-own-address behavior as the listener sees on message
	// 1: the first Return entry is this worker's own address.
	_, peerRoute, ok := msg.Return.Next()
	if !ok || len(peerRoute) == 0 {
		w.fail(fmt.Errorf("securechannel: %w: message 2 arrived with no return route", ockamerror.ErrInvalidArgument))
		return nil
	}

	msg3, err := w.hs.BuildMessage3()
	if err != nil {
		w.fail(fmt.Errorf("securechannel: %w", err))
		return nil
	}
	result, _ := w.hs.Result()

	addrs := generateAddresses()
	flowControlID := string(node.GenerateAddress("flow"))
	addrs.FlowControlID = flowControlID
	cs := newChannelState(w.cfg, Initiator, addrs, flowControlID)
	cs.peerRoute = peerRoute
	cs.adoptResult(ctx, result)

	if err := startChannelWorkers(ctx, w.nd, cs, w.cluster); err != nil {
		w.fail(err)
		return nil
	}

	if err := w.ctrl.Send(ctx, node.LocalMessage{
		Payload: msg3,
		Onward:  peerRoute,
		Return:  node.Route{addrs.DecryptorRemote},
	}); err != nil {
		w.fail(fmt.Errorf("securechannel: sending message 3: %w", err))
		return nil
	}

	w.resultCh <- initiatorResult{addrs: addrs}
	w.stopSelfAsync()
	return nil
}

// stopSelfAsync tears down the temporary initiator worker from a
// separate goroutine. Calling node.StopWorker synchronously here would
// deadlock: it blocks on this very goroutine's done channel closing,
// and that channel only closes after HandleMessage returns.
func (w *initiatorWorker) stopSelfAsync() {
	go func() {
		_ = w.nd.StopWorker(context.Background(), w.selfAddr)
	}()
}

func (w *initiatorWorker) fail(err error) {
	w.resultCh <- initiatorResult{err: err}
	w.stopSelfAsync()
}

// CreateSecureChannel drives the initiator side of a handshake to a
// peer reachable at listenerRoute, blocking until the channel is
// running or ctx is done.
func CreateSecureChannel(ctx context.Context, nd *node.Node, listenerRoute node.Route, cfg Config, cluster string) (Addresses, error) {
	hs, err := NewInitiatorHandshake(cfg)
	if err != nil {
		return Addresses{}, err
	}
	msg1, err := hs.BuildMessage1()
	if err != nil {
		return Addresses{}, err
	}

	selfAddr := node.GenerateAddress("sc_initiator")
	resultCh := make(chan initiatorResult, 1)
	iw := &initiatorWorker{nd: nd, hs: hs, cfg: cfg, cluster: cluster, resultCh: resultCh, selfAddr: selfAddr}
	if err := nd.StartWorker(ctx, node.AddressSet{selfAddr}, iw, node.StartOptions{
		IncomingAccessControl: node.AllowAll,
		OutgoingAccessControl: node.AllowAll,
	}); err != nil {
		return Addresses{}, fmt.Errorf("securechannel: starting initiator worker: %w", err)
	}

	if err := nd.Router().Route(ctx, node.LocalMessage{
		Payload: msg1,
		Onward:  listenerRoute,
		Return:  node.Route{selfAddr},
	}); err != nil {
		_ = nd.StopWorker(ctx, selfAddr)
		return Addresses{}, fmt.Errorf("securechannel: sending message 1: %w", err)
	}

	select {
	case res := <-resultCh:
		return res.addrs, res.err
	case <-ctx.Done():
		return Addresses{}, ctx.Err()
	}
}
