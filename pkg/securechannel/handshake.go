package securechannel

import (
	"context"
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// Role distinguishes which side of the handshake a Handshake drives.
type Role int

const (
	Initiator Role = iota
	Responder
)

// State is a handshake's position in its state machine:
//
//	initiator: SendMessage1 -> ReceiveMessage2 -> SendMessage3 -> Running -> Closed
//	responder: ReceiveMessage1 -> SendMessage2 -> ReceiveMessage3 -> Running -> Closed
type State int

const (
	StateSendMessage1 State = iota
	StateReceiveMessage2
	StateSendMessage3
	StateReceiveMessage1
	StateSendMessage2
	StateReceiveMessage3
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSendMessage1:
		return "send_message_1"
	case StateReceiveMessage2:
		return "receive_message_2"
	case StateSendMessage3:
		return "send_message_3"
	case StateReceiveMessage1:
		return "receive_message_1"
	case StateSendMessage2:
		return "send_message_2"
	case StateReceiveMessage3:
		return "receive_message_3"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CredentialVerifier resolves a credential's issuer and checks it chains
// to a recognized authority. Implemented by
// pkg/trust, which knows how to resolve an issuer's change history;
// kept as an interface here so securechannel doesn't need to depend on
// how authorities are located.
type CredentialVerifier interface {
	Verify(ctx context.Context, cred *identity.Credential, subject identity.Identifier, at time.Time) (map[string][]byte, error)
}

// Config is the material a Handshake needs from its owner to run.
type Config struct {
	Vault vault.Vault

	LocalChangeHistory                 *identity.ChangeHistory
	LocalIdentifier                    identity.Identifier
	LocalPurposeKeyAttestation         *identity.PurposeKeyAttestation
	LocalPurposeKeyHandle              vault.Handle
	LocalCredential *identity.Credential // optional, presented in-line

	TrustPolicy        TrustPolicy        // nil means TrustEveryone
	CredentialVerifier CredentialVerifier // nil means no in-handshake credential is required
	Clock              func() time.Time   // nil means time.Now

	// AttributesStore and NodeName are only needed by
	// CreateSecureChannel/CreateSecureChannelListener, to persist
	// attributes a credential attested during the handshake or a later
	// credential exchange. A Handshake driven
	// directly, without the channel wiring, can leave these nil.
	AttributesStore repository.IdentityAttributesRepository
	NodeName        string
}

func (c *Config) clock() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Result is what a Handshake produces on reaching StateRunning.
type Result struct {
	PeerIdentifier identity.Identifier
	PeerPublicKey  vault.PublicKey
	PeerAttributes map[string][]byte
	SendKey        vault.Handle
	ReceiveKey     vault.Handle
}

// Handshake drives one side of a secure-channel establishment. It is
// not safe for concurrent use — exactly one worker goroutine owns it
// for the handshake's duration, since a worker's single-threaded
// mailbox is what makes this safe in practice.
type Handshake struct {
	cfg   Config
	role  Role
	state State
	sched *keySchedule

	localEphemeralHandle vault.Handle
	localEphemeralPublic []byte
	peerEphemeralPublic  []byte

	result *Result
}

func newHandshake(cfg Config, role Role, initialState State) (*Handshake, error) {
	sched, err := newKeySchedule(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("securechannel: initializing key schedule: %w", err)
	}
	return &Handshake{cfg: cfg, role: role, state: initialState, sched: sched}, nil
}

// NewInitiatorHandshake starts a handshake as the side that sends
// message 1 first.
func NewInitiatorHandshake(cfg Config) (*Handshake, error) {
	return newHandshake(cfg, Initiator, StateSendMessage1)
}

// NewResponderHandshake starts a handshake as the side that waits for
// message 1.
func NewResponderHandshake(cfg Config) (*Handshake, error) {
	return newHandshake(cfg, Responder, StateReceiveMessage1)
}

// State returns the handshake's current position.
func (h *Handshake) State() State { return h.state }

// Result returns the established session once State is StateRunning.
func (h *Handshake) Result() (*Result, bool) {
	if h.state != StateRunning || h.result == nil {
		return nil, false
	}
	return h.result, true
}

func (h *Handshake) requireState(want State) error {
	if h.state != want {
		return fmt.Errorf("securechannel: %w: handshake is in state %s, expected %s", ockamerror.ErrConsistencyError, h.state, want)
	}
	return nil
}

func (h *Handshake) generateEphemeral() error {
	handle, err := h.cfg.Vault.X25519GenerateKey()
	if err != nil {
		return fmt.Errorf("securechannel: generating ephemeral key: %w", err)
	}
	pub, err := h.cfg.Vault.X25519PublicKey(handle)
	if err != nil {
		return fmt.Errorf("securechannel: reading ephemeral public key: %w", err)
	}
	h.localEphemeralHandle = handle
	h.localEphemeralPublic = pub
	return nil
}

// BuildMessage1 produces the initiator's first, unencrypted message.
func (h *Handshake) BuildMessage1() ([]byte, error) {
	if err := h.requireState(StateSendMessage1); err != nil {
		return nil, err
	}
	if err := h.generateEphemeral(); err != nil {
		return nil, err
	}
	h.sched.mixHash(h.localEphemeralPublic)

	encoded, err := wireformat.Marshal(handshakeMessage1{EphemeralPublicKey: h.localEphemeralPublic})
	if err != nil {
		return nil, fmt.Errorf("securechannel: encoding message 1: %w", err)
	}
	h.state = StateReceiveMessage2
	return encoded, nil
}

// ProcessMessage1 consumes the initiator's first message as the
// responder.
func (h *Handshake) ProcessMessage1(data []byte) error {
	if err := h.requireState(StateReceiveMessage1); err != nil {
		return err
	}
	var msg handshakeMessage1
	if err := wireformat.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("securechannel: decoding message 1: %w", err)
	}
	if len(msg.EphemeralPublicKey) != 32 {
		return fmt.Errorf("securechannel: %w: message 1 ephemeral key must be 32 bytes", ockamerror.ErrInvalidArgument)
	}
	h.peerEphemeralPublic = msg.EphemeralPublicKey
	h.sched.mixHash(h.peerEphemeralPublic)
	h.state = StateSendMessage2
	return nil
}

// BuildMessage2 produces the responder's ephemeral key plus its
// encrypted identity proof.
func (h *Handshake) BuildMessage2(ctx context.Context) ([]byte, error) {
	if err := h.requireState(StateSendMessage2); err != nil {
		return nil, err
	}
	if err := h.generateEphemeral(); err != nil {
		return nil, err
	}
	h.sched.mixHash(h.localEphemeralPublic)

	dh, err := h.cfg.Vault.X25519DH(h.localEphemeralHandle, h.peerEphemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("securechannel: responder dh: %w", err)
	}
	key, err := h.sched.mixKey(dh)
	if err != nil {
		return nil, fmt.Errorf("securechannel: deriving message 2 key: %w", err)
	}

	proofBytes, err := h.buildIdentityProof()
	if err != nil {
		return nil, err
	}

	ciphertext, err := h.cfg.Vault.AEADSeal(key, proofBytes, zeroNonce(), h.sched.h[:])
	if err != nil {
		return nil, fmt.Errorf("securechannel: sealing message 2: %w", err)
	}
	h.sched.mixHash(ciphertext)

	encoded, err := wireformat.Marshal(handshakeMessage2{
		EphemeralPublicKey: h.localEphemeralPublic,
		Ciphertext:         ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("securechannel: encoding message 2: %w", err)
	}
	h.state = StateReceiveMessage3
	return encoded, nil
}

// ProcessMessage2 consumes the responder's message as the initiator,
// verifying its identity proof and running the trust policy and any
// in-handshake credential verification.
func (h *Handshake) ProcessMessage2(ctx context.Context, data []byte) error {
	if err := h.requireState(StateReceiveMessage2); err != nil {
		return err
	}
	var msg handshakeMessage2
	if err := wireformat.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("securechannel: decoding message 2: %w", err)
	}
	if len(msg.EphemeralPublicKey) != 32 {
		return fmt.Errorf("securechannel: %w: message 2 ephemeral key must be 32 bytes", ockamerror.ErrInvalidArgument)
	}
	h.peerEphemeralPublic = msg.EphemeralPublicKey
	h.sched.mixHash(h.peerEphemeralPublic)

	dh, err := h.cfg.Vault.X25519DH(h.localEphemeralHandle, h.peerEphemeralPublic)
	if err != nil {
		return fmt.Errorf("securechannel: initiator dh: %w", err)
	}
	key, err := h.sched.mixKey(dh)
	if err != nil {
		return fmt.Errorf("securechannel: deriving message 2 key: %w", err)
	}

	plaintext, err := h.cfg.Vault.AEADOpen(key, msg.Ciphertext, zeroNonce(), h.sched.h[:])
	if err != nil {
		return fmt.Errorf("securechannel: %w: opening message 2", ockamerror.ErrSecureChannelVerificationFailed)
	}

	peerID, peerKey, peerAttrs, err := h.verifyIdentityProof(ctx, plaintext, h.sched.h)
	if err != nil {
		return err
	}
	h.sched.mixHash(msg.Ciphertext)

	h.result = &Result{PeerIdentifier: peerID, PeerPublicKey: peerKey, PeerAttributes: peerAttrs}
	h.state = StateSendMessage3
	return nil
}

// BuildMessage3 produces the initiator's encrypted identity proof and
// completes the handshake.
func (h *Handshake) BuildMessage3() ([]byte, error) {
	if err := h.requireState(StateSendMessage3); err != nil {
		return nil, err
	}
	key, err := h.sched.mixKey("")
	if err != nil {
		return nil, fmt.Errorf("securechannel: deriving message 3 key: %w", err)
	}

	proofBytes, err := h.buildIdentityProof()
	if err != nil {
		return nil, err
	}

	ciphertext, err := h.cfg.Vault.AEADSeal(key, proofBytes, zeroNonce(), h.sched.h[:])
	if err != nil {
		return nil, fmt.Errorf("securechannel: sealing message 3: %w", err)
	}
	h.sched.mixHash(ciphertext)

	if err := h.finish(Initiator); err != nil {
		return nil, err
	}

	encoded, err := wireformat.Marshal(handshakeMessage3{Ciphertext: ciphertext})
	if err != nil {
		return nil, fmt.Errorf("securechannel: encoding message 3: %w", err)
	}
	return encoded, nil
}

// ProcessMessage3 consumes the initiator's final message as the
// responder and completes the handshake.
func (h *Handshake) ProcessMessage3(ctx context.Context, data []byte) error {
	if err := h.requireState(StateReceiveMessage3); err != nil {
		return err
	}
	var msg handshakeMessage3
	if err := wireformat.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("securechannel: decoding message 3: %w", err)
	}

	key, err := h.sched.mixKey("")
	if err != nil {
		return fmt.Errorf("securechannel: deriving message 3 key: %w", err)
	}

	plaintext, err := h.cfg.Vault.AEADOpen(key, msg.Ciphertext, zeroNonce(), h.sched.h[:])
	if err != nil {
		return fmt.Errorf("securechannel: %w: opening message 3", ockamerror.ErrSecureChannelVerificationFailed)
	}

	peerID, peerKey, peerAttrs, err := h.verifyIdentityProof(ctx, plaintext, h.sched.h)
	if err != nil {
		return err
	}
	h.sched.mixHash(msg.Ciphertext)

	h.result = &Result{PeerIdentifier: peerID, PeerPublicKey: peerKey, PeerAttributes: peerAttrs}
	return h.finish(Responder)
}

// finish splits the transport keys and assigns send/receive direction,
// then moves the handshake to StateRunning.
func (h *Handshake) finish(selfRole Role) error {
	i2r, r2i, err := h.sched.split()
	if err != nil {
		return fmt.Errorf("securechannel: deriving transport keys: %w", err)
	}
	if h.result == nil {
		return fmt.Errorf("securechannel: %w: finishing handshake with no verified peer", ockamerror.ErrConsistencyError)
	}
	if selfRole == Initiator {
		h.result.SendKey, h.result.ReceiveKey = i2r, r2i
	} else {
		h.result.SendKey, h.result.ReceiveKey = r2i, i2r
	}
	h.state = StateRunning
	return nil
}

// buildIdentityProof signs the transcript hash at this exact moment —
// before the local identity payload itself is built and mixed into the
// transcript — so the signature can never be construed as covering
// anything the payload later adds.
func (h *Handshake) buildIdentityProof() ([]byte, error) {
	transcript := h.sched.transcriptHash()
	sig, err := h.cfg.Vault.Sign(h.cfg.LocalPurposeKeyHandle, transcript[:])
	if err != nil {
		return nil, fmt.Errorf("securechannel: signing transcript hash: %w", err)
	}

	proof := identityProof{
		ChangeHistory:         h.cfg.LocalChangeHistory,
		PurposeKeyAttestation: h.cfg.LocalPurposeKeyAttestation,
		TranscriptSignature:   sig,
		Credential:            h.cfg.LocalCredential,
	}
	encoded, err := wireformat.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("securechannel: encoding identity proof: %w", err)
	}
	return encoded, nil
}

// verifyIdentityProof checks a peer's change history, its purpose-key
// attestation, and the signature over the transcript hash as it stood
// before the proof was built; runs the trust policy; and, if a
// CredentialVerifier is configured, verifies any in-line credential and
// returns its attested attributes.
func (h *Handshake) verifyIdentityProof(ctx context.Context, plaintext []byte, transcriptAtSigning [32]byte) (identity.Identifier, vault.PublicKey, map[string][]byte, error) {
	var proof identityProof
	if err := wireformat.Unmarshal(plaintext, &proof); err != nil {
		return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: decoding identity proof: %w", err)
	}
	if proof.ChangeHistory == nil || proof.PurposeKeyAttestation == nil {
		return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: %w: identity proof missing change history or purpose key", ockamerror.ErrSecureChannelVerificationFailed)
	}

	peerIdentity, err := identity.NewVerifiedIdentity(h.cfg.Vault, proof.ChangeHistory)
	if err != nil {
		return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: %w: peer change history: %v", ockamerror.ErrSecureChannelVerificationFailed, err)
	}
	peerID := peerIdentity.Identifier()

	at := h.cfg.clock()
	if err := identity.VerifyPurposeKeyAttestation(h.cfg.Vault, peerIdentity.ChangeHistory(), peerID, proof.PurposeKeyAttestation, identity.PurposeSecureChannel, at); err != nil {
		return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: %w: peer purpose key: %v", ockamerror.ErrSecureChannelVerificationFailed, err)
	}
	peerKey := proof.PurposeKeyAttestation.PublicKey()

	ok, err := h.cfg.Vault.Verify(peerKey, transcriptAtSigning[:], proof.TranscriptSignature)
	if err != nil {
		return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: verifying transcript signature: %w", err)
	}
	if !ok {
		return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: %w: transcript signature invalid", ockamerror.ErrSecureChannelVerificationFailed)
	}

	if err := checkTrust(ctx, h.cfg.TrustPolicy, peerID, peerIdentity.LatestPublicKey()); err != nil {
		return identity.Identifier{}, vault.PublicKey{}, nil, err
	}

	var attrs map[string][]byte
	if h.cfg.CredentialVerifier != nil {
		if proof.Credential == nil {
			return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: %w: credential verification is required but peer presented none", ockamerror.ErrCredentialInvalid)
		}
		attrs, err = h.cfg.CredentialVerifier.Verify(ctx, proof.Credential, peerID, at)
		if err != nil {
			return identity.Identifier{}, vault.PublicKey{}, nil, fmt.Errorf("securechannel: %w: in-handshake credential: %v", ockamerror.ErrCredentialInvalid, err)
		}
	}

	return peerID, peerKey, attrs, nil
}

func zeroNonce() []byte {
	return make([]byte, 12)
}
