package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// GenerateAEADKey generates a random 32-byte AES-GCM key and returns a
// handle to it. Session keys are not made this way: the secure channel
// handshake seeds its chaining key with ImportAEADKey and derives every
// later key with HKDFSHA256.
func (v *SoftwareVault) GenerateAEADKey() (Handle, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("vault: generating aead key: %w", err)
	}
	return v.put(&secret{kind: kindAEAD, aeadKey: key})
}

// ImportAEADKey wraps a caller-supplied 32-byte key as an AEAD-key
// handle. Used by the secure channel handshake to seed its chaining
// key with a public protocol constant rather than random material —
// its Noise-XX-derived key schedule needs a known starting point both
// sides can reach without a prior DH.
func (v *SoftwareVault) ImportAEADKey(key [32]byte) (Handle, error) {
	return v.put(&secret{kind: kindAEAD, aeadKey: key})
}

// HKDFSHA256 derives outputCount 32-byte AEAD-key handles from the
// secrets behind saltHandle and inputHandle. Each handle may be an
// AEAD-key handle (X25519DH returns its shared secret as one) or an
// X25519 private-key handle; either is 32 raw bytes underneath.
func (v *SoftwareVault) HKDFSHA256(saltHandle, inputHandle Handle, outputCount int) ([]Handle, error) {
	salt, err := v.rawSecretBytes(saltHandle)
	if err != nil {
		return nil, err
	}
	input, err := v.rawSecretBytes(inputHandle)
	if err != nil {
		return nil, err
	}
	if outputCount <= 0 {
		return nil, fmt.Errorf("vault: %w: outputCount must be positive", ockamerror.ErrInvalidArgument)
	}

	reader := hkdf.New(sha256.New, input, salt, nil)
	handles := make([]Handle, 0, outputCount)
	for i := 0; i < outputCount; i++ {
		var key [32]byte
		if _, err := io.ReadFull(reader, key[:]); err != nil {
			return nil, fmt.Errorf("vault: hkdf expand: %w", err)
		}
		h, err := v.put(&secret{kind: kindAEAD, aeadKey: key})
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// AEADSeal encrypts plaintext under the key behind h with AES-256-GCM,
// producing ciphertext‖tag. nonce12 must be exactly 12 bytes (the
// caller always supplies the big-endian-encoded nonce counter).
func (v *SoftwareVault) AEADSeal(h Handle, plaintext, nonce12, aad []byte) ([]byte, error) {
	gcm, err := v.gcmFor(h)
	if err != nil {
		return nil, err
	}
	if len(nonce12) != gcm.NonceSize() {
		return nil, fmt.Errorf("vault: %w: nonce must be %d bytes", ockamerror.ErrInvalidArgument, gcm.NonceSize())
	}
	return gcm.Seal(nil, nonce12, plaintext, aad), nil
}

// AEADOpen decrypts ciphertextAndTag under the key behind h. Returns
// ErrInvalidTag on authentication failure; the caller must not update
// any replay-window state when this error is returned.
func (v *SoftwareVault) AEADOpen(h Handle, ciphertextAndTag, nonce12, aad []byte) ([]byte, error) {
	gcm, err := v.gcmFor(h)
	if err != nil {
		return nil, err
	}
	if len(nonce12) != gcm.NonceSize() {
		return nil, fmt.Errorf("vault: %w: nonce must be %d bytes", ockamerror.ErrInvalidArgument, gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, nonce12, ciphertextAndTag, aad)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", ockamerror.ErrInvalidTag)
	}
	return plaintext, nil
}

func (v *SoftwareVault) gcmFor(h Handle) (cipher.AEAD, error) {
	s, ok := v.get(h)
	if !ok || s.kind != kindAEAD {
		return nil, fmt.Errorf("vault: %w: unknown aead handle", ockamerror.ErrInvalidArgument)
	}
	block, err := aes.NewCipher(s.aeadKey[:])
	if err != nil {
		return nil, fmt.Errorf("vault: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: gcm: %w", err)
	}
	return gcm, nil
}

// rawSecretBytes returns the 32 raw secret bytes behind an AEAD-key
// handle (which is also what X25519DH returns for a shared secret) or
// an X25519 private-key handle. It is the one helper that returns raw
// key bytes, and only internally for HKDF input — the bytes never leave
// the vault package.
func (v *SoftwareVault) rawSecretBytes(h Handle) ([]byte, error) {
	s, ok := v.get(h)
	if !ok {
		return nil, fmt.Errorf("vault: %w: unknown handle", ockamerror.ErrInvalidArgument)
	}
	switch s.kind {
	case kindAEAD:
		return s.aeadKey[:], nil
	case kindX25519:
		return s.x25519Priv[:], nil
	default:
		return nil, fmt.Errorf("vault: %w: handle is not a 32-byte secret", ockamerror.ErrInvalidArgument)
	}
}
