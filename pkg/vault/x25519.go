package vault

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// X25519GenerateKey generates a clamped X25519 key pair and returns a
// handle to the private scalar, grounded on the same clamping sequence
// used across the pack's X25519 implementations (clear low 3 bits of
// byte 0, clear high bit and set bit 6 of byte 31).
func (v *SoftwareVault) X25519GenerateKey() (Handle, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return "", fmt.Errorf("vault: generating x25519 key: %w", err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	return v.put(&secret{kind: kindX25519, x25519Priv: priv})
}

// X25519PublicKey computes the public key for a handle created by
// X25519GenerateKey.
func (v *SoftwareVault) X25519PublicKey(h Handle) ([]byte, error) {
	s, ok := v.get(h)
	if !ok || s.kind != kindX25519 {
		return nil, fmt.Errorf("vault: %w: unknown x25519 handle", ockamerror.ErrInvalidArgument)
	}
	pub, err := curve25519.X25519(s.x25519Priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("vault: x25519 public key: %w", err)
	}
	return pub, nil
}

// X25519DH performs ECDH between the private scalar behind secretHandle
// and peerPublic, returning a handle to the 32-byte shared secret
// suitable as HKDF input material.
func (v *SoftwareVault) X25519DH(secretHandle Handle, peerPublic []byte) (Handle, error) {
	s, ok := v.get(secretHandle)
	if !ok || s.kind != kindX25519 {
		return "", fmt.Errorf("vault: %w: unknown x25519 handle", ockamerror.ErrInvalidArgument)
	}
	if len(peerPublic) != 32 {
		return "", fmt.Errorf("vault: %w: peer public key must be 32 bytes", ockamerror.ErrInvalidArgument)
	}
	shared, err := curve25519.X25519(s.x25519Priv[:], peerPublic)
	if err != nil {
		return "", fmt.Errorf("vault: x25519 dh: %w", err)
	}
	var out [32]byte
	copy(out[:], shared)
	return v.put(&secret{kind: kindAEAD, aeadKey: out})
}
