package securechannel

import (
	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/node"
	"github.com/ockam/ockam/pkg/vault"
)

// protocolName seeds both sides' transcript hash and chaining key.
// Changing it changes every derived key, so it is versioned the way a
// wire format version would be.
const protocolName = "Ockam_XX_25519_AESGCM_SHA256_v1"

// handshakeMessage1 is sent unencrypted: the initiator has nothing yet
// to prove or protect.
type handshakeMessage1 struct {
	EphemeralPublicKey []byte `cbor:"1,keyasint"`
}

// handshakeMessage2 carries the responder's ephemeral key in the clear
// and its identity proof encrypted under the first derived key.
type handshakeMessage2 struct {
	EphemeralPublicKey []byte `cbor:"1,keyasint"`
	Ciphertext         []byte `cbor:"2,keyasint"`
}

// handshakeMessage3 carries the initiator's identity proof, encrypted
// under the second derived key.
type handshakeMessage3 struct {
	Ciphertext []byte `cbor:"1,keyasint"`
}

// identityProof is the plaintext sealed inside handshakeMessage2 and
// handshakeMessage3: the sender's full change history (so
// the receiver can verify it from scratch), the purpose-key attestation
// for the secure-channel key this handshake is using, a signature over
// the transcript hash computed before this payload was built, and
// optionally a credential to present in-line.
type identityProof struct {
	ChangeHistory         *identity.ChangeHistory         `cbor:"1,keyasint"`
	PurposeKeyAttestation *identity.PurposeKeyAttestation `cbor:"2,keyasint"`
	TranscriptSignature   vault.Signature                 `cbor:"3,keyasint"`
	Credential            *identity.Credential            `cbor:"4,keyasint,omitempty"`
}

// transportFrame is the wire shape of every post-handshake message
//: a monotonic counter (the low 8 bytes of the AES-GCM
// nonce, the high 4 bytes always zero) and the sealed ciphertext.
type transportFrame struct {
	Counter    uint64 `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

// tunneledMessage is what actually travels, encrypted, inside a
// transportFrame: the plaintext payload plus the routes it carried
// before entering the channel, so the decrypting side can resume
// routing it toward its real destination on this node.
type tunneledMessage struct {
	Onward  node.Route `cbor:"1,keyasint"`
	Return  node.Route `cbor:"2,keyasint"`
	Payload []byte     `cbor:"3,keyasint"`
}

// credentialExchangeMessage is the payload carried by the post-handshake
// credential-exchange worker: a credential offered for
// re-verification at any point during Running, independent of the
// handshake.
type credentialExchangeMessage struct {
	Credential *identity.Credential `cbor:"1,keyasint"`
}

// encryptBlobRequest is encryptor_api's request shape for a synchronous
// seal-this-buffer call, distinct from a sessionInfo lookup (only an
// empty payload is a sessionInfo lookup; a non-empty payload that fails
// to decode as this type gets an error reply). It shares the channel's own send key and nonce counter
// with the encryptor worker, so a blob sealed this way consumes the
// same counter sequence a tunneled message would have — the two must
// never seal under the same counter value.
type encryptBlobRequest struct {
	Plaintext []byte `cbor:"1,keyasint"`
}

// encryptBlobResponse answers an encryptBlobRequest with the frame the
// caller would otherwise have received over the wire from a peer's
// decryptor_remote.
type encryptBlobResponse struct {
	Frame transportFrame `cbor:"1,keyasint"`
	Error string         `cbor:"2,keyasint,omitempty"`
}

// decryptBlobRequest is decryptor_api's request shape for a synchronous
// open-this-frame call: the caller supplies a frame it received out of
// band (not over this channel's own transport route) and gets back the
// opened plaintext, subject to the same replay window as every other
// frame this channel has opened.
type decryptBlobRequest struct {
	Frame transportFrame `cbor:"1,keyasint"`
}

// decryptBlobResponse answers a decryptBlobRequest.
type decryptBlobResponse struct {
	Plaintext []byte `cbor:"1,keyasint,omitempty"`
	Error     string `cbor:"2,keyasint,omitempty"`
}
