// Package securechannel implements a mutually-authenticated, encrypted
// channel between two identities, keyed by a handshake
// derived from the Noise XX pattern: ephemeral X25519 key agreement
// followed by an exchange of identity proofs, each one a purpose-key
// attestation plus a signature over the handshake transcript at the
// moment of signing. Unlike full Noise XX, the channel carries no
// long-term Noise static DH key — identity is proven by a signature
// binding the transcript hash, not by a static key's presence in the
// DH ratchet, since Ockam identities sign with Ed25519 rather than
// holding an X25519 static key.
//
// A channel exposes four node addresses per endpoint — decryptor_remote,
// decryptor_api, encryptor, encryptor_api — all sharing one flow-control
// id, so that every message carried over the channel is traceable back
// to a single producer registration.
package securechannel
