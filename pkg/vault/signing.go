package vault

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// signingKey holds the raw private key material for whichever scheme
// produced it. Only one field is populated.
type signingKey struct {
	ed25519 ed25519.PrivateKey
	p256    *ecdsa.PrivateKey
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// GenerateSigningKey generates a new signing key of the requested scheme
// and returns an opaque handle to it.
func (v *SoftwareVault) GenerateSigningKey(scheme SigningScheme) (Handle, error) {
	switch scheme {
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", fmt.Errorf("vault: generating ed25519 key: %w", err)
		}
		return v.put(&secret{kind: kindSigning, scheme: Ed25519, signingKey: signingKey{ed25519: priv}})
	case P256:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return "", fmt.Errorf("vault: generating p256 key: %w", err)
		}
		return v.put(&secret{kind: kindSigning, scheme: P256, signingKey: signingKey{p256: priv}})
	default:
		return "", fmt.Errorf("vault: %w: scheme %v", ockamerror.ErrUnsupportedScheme, scheme)
	}
}

// VerifyingPublicKey returns the public key corresponding to a signing
// handle.
func (v *SoftwareVault) VerifyingPublicKey(h Handle) (PublicKey, error) {
	s, ok := v.get(h)
	if !ok || s.kind != kindSigning {
		return PublicKey{}, fmt.Errorf("vault: %w: unknown signing handle", ockamerror.ErrInvalidArgument)
	}
	switch s.scheme {
	case Ed25519:
		pub := s.signingKey.ed25519.Public().(ed25519.PublicKey)
		return PublicKey{Scheme: Ed25519, Bytes: append([]byte(nil), pub...)}, nil
	case P256:
		pub := elliptic.MarshalCompressed(elliptic.P256(), s.signingKey.p256.PublicKey.X, s.signingKey.p256.PublicKey.Y)
		return PublicKey{Scheme: P256, Bytes: pub}, nil
	default:
		return PublicKey{}, fmt.Errorf("vault: %w: scheme %v", ockamerror.ErrUnsupportedScheme, s.scheme)
	}
}

// Sign signs data with the key behind h. Signature format is fixed per
// scheme: 64 raw bytes for Ed25519, 64 bytes (r‖s, each 32 bytes,
// zero-padded) for P-256.
func (v *SoftwareVault) Sign(h Handle, data []byte) (Signature, error) {
	s, ok := v.get(h)
	if !ok || s.kind != kindSigning {
		return nil, fmt.Errorf("vault: %w: unknown signing handle", ockamerror.ErrInvalidArgument)
	}
	switch s.scheme {
	case Ed25519:
		return Signature(ed25519.Sign(s.signingKey.ed25519, data)), nil
	case P256:
		digest := sha256.Sum256(data)
		r, sVal, err := ecdsa.Sign(rand.Reader, s.signingKey.p256, digest[:])
		if err != nil {
			return nil, fmt.Errorf("vault: p256 sign: %w", err)
		}
		return Signature(rsToFixed64(r, sVal)), nil
	default:
		return nil, fmt.Errorf("vault: %w: scheme %v", ockamerror.ErrUnsupportedScheme, s.scheme)
	}
}

// Verify checks sig over data against pub. The comparison of the
// decoded signature components is delegated to crypto/ed25519 and
// crypto/ecdsa, both of which are constant-time with respect to the
// signature bytes; no additional subtle.ConstantTimeCompare is needed
// for the signature itself, but public-key-bytes equality checks
// elsewhere in the core use subtle.ConstantTimeCompare to avoid timing
// side channels on handle/key comparisons.
func (v *SoftwareVault) Verify(pub PublicKey, data []byte, sig Signature) (bool, error) {
	switch pub.Scheme {
	case Ed25519:
		if len(pub.Bytes) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return false, nil
		}
		return ed25519.Verify(ed25519.PublicKey(pub.Bytes), data, []byte(sig)), nil
	case P256:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), pub.Bytes)
		if x == nil {
			return false, nil
		}
		if len(sig) != 64 {
			return false, nil
		}
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		digest := sha256.Sum256(data)
		pubKey := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		return ecdsa.Verify(pubKey, digest[:], r, s), nil
	default:
		return false, fmt.Errorf("vault: %w: scheme %v", ockamerror.ErrUnsupportedScheme, pub.Scheme)
	}
}

func rsToFixed64(r, s *big.Int) []byte {
	out := make([]byte, 64)
	r.FillBytes(out[0:32])
	s.FillBytes(out[32:64])
	return out
}

// ConstantTimeEqual compares two byte slices in constant time. Used
// when checking a change's previous-change hash during identity
// history verification and when matching a pinned public key
// (securechannel.TrustPublicKey).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
