package securechannel

import (
	"github.com/ockam/ockam/pkg/vault"
)

// keySchedule tracks the running transcript hash and chaining key of a
// handshake in progress, mirroring the h/ck state a Noise HandshakeState
// keeps. h is never secret — it is only ever fed to
// SHA256 or used as AEAD associated data — so it is kept as plain bytes
// rather than a vault handle; ck is secret derived material and is
// always a vault AEAD-key handle.
type keySchedule struct {
	v  vault.Vault
	h  [32]byte
	ck vault.Handle
}

// newKeySchedule seeds h and ck from the protocol name, the one public
// constant both sides start from without having talked yet.
func newKeySchedule(v vault.Vault) (*keySchedule, error) {
	h := v.SHA256([]byte(protocolName))
	ck, err := v.ImportAEADKey(h)
	if err != nil {
		return nil, err
	}
	return &keySchedule{v: v, h: h, ck: ck}, nil
}

// mixHash folds data into the transcript hash: h = SHA256(h || data).
func (ks *keySchedule) mixHash(data []byte) {
	buf := make([]byte, 0, len(ks.h)+len(data))
	buf = append(buf, ks.h[:]...)
	buf = append(buf, data...)
	ks.h = ks.v.SHA256(buf)
}

// mixKey ratchets the chaining key forward and returns a fresh
// encryption-key handle for the message this step is sealing. When
// secretHandle is empty, the ratchet has no new DH output to mix in —
// this handshake derives from, rather than replicates, full Noise XX
// and has only one ephemeral-ephemeral exchange — and ck itself stands
// in as the input, still producing a distinct key per step because ck
// carries forward session-unique entropy from the first DH.
func (ks *keySchedule) mixKey(secretHandle vault.Handle) (vault.Handle, error) {
	input := secretHandle
	if input == "" {
		input = ks.ck
	}
	outputs, err := ks.v.HKDFSHA256(ks.ck, input, 2)
	if err != nil {
		return "", err
	}
	ks.ck = outputs[0]
	return outputs[1], nil
}

// split derives the two final transport keys once the handshake is
// complete, one per direction, so that two concurrent senders sharing a
// single channel never reuse nonces against each other's key.
func (ks *keySchedule) split() (initiatorToResponder, responderToInitiator vault.Handle, err error) {
	outputs, err := ks.v.HKDFSHA256(ks.ck, ks.ck, 2)
	if err != nil {
		return "", "", err
	}
	return outputs[0], outputs[1], nil
}

// transcriptHash returns a copy of the current running hash, safe to
// hold onto after the schedule keeps mixing (e.g. to sign over the
// exact value a payload was built against).
func (ks *keySchedule) transcriptHash() [32]byte {
	return ks.h
}
