// Package vault holds signing and AEAD key material behind opaque
// handles. Callers never see raw key bytes: even ExportTLSCertificate,
// used at subsystem boundaries to wrap a purpose key as a
// tls.Certificate for an embedding application, installs a signer that
// calls back into the vault rather than the private key. The vault is the sole place in the core that imports
// crypto/* directly for key generation and signing; every other
// subsystem routes through Vault.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/ockamlog"
)

// Handle is an opaque, short random identifier for key material held by
// the vault. It carries no information about the key it names.
type Handle string

// SigningScheme names a supported primary-key or purpose-key algorithm.
type SigningScheme int

const (
	Ed25519 SigningScheme = iota
	P256
)

func (s SigningScheme) String() string {
	switch s {
	case Ed25519:
		return "Ed25519"
	case P256:
		return "P256"
	default:
		return "unknown"
	}
}

// PublicKey is a tagged union of the two supported verifying-key
// encodings: `{Ed25519: [32]} | {P256: [33]}` (compressed).
type PublicKey struct {
	Scheme SigningScheme `cbor:"1,keyasint"`
	Bytes  []byte        `cbor:"2,keyasint"`
}

// Signature is a fixed-size scheme-specific signature: 64 bytes for
// Ed25519, 64 bytes (raw r‖s) for P-256.
type Signature []byte

// Vault is the interface every subsystem programs against. SoftwareVault
// is the only implementation in core; hardware-backed vaults are an
// explicit Non-goal.
type Vault interface {
	GenerateSigningKey(scheme SigningScheme) (Handle, error)
	VerifyingPublicKey(h Handle) (PublicKey, error)
	Sign(h Handle, data []byte) (Signature, error)
	Verify(pub PublicKey, data []byte, sig Signature) (bool, error)

	SHA256(data []byte) [32]byte

	GenerateAEADKey() (Handle, error)
	ImportAEADKey(key [32]byte) (Handle, error)
	HKDFSHA256(saltHandle, inputHandle Handle, outputCount int) ([]Handle, error)
	AEADSeal(h Handle, plaintext, nonce12, aad []byte) ([]byte, error)
	AEADOpen(h Handle, ciphertextAndTag, nonce12, aad []byte) ([]byte, error)

	X25519GenerateKey() (Handle, error)
	X25519PublicKey(h Handle) ([]byte, error)
	X25519DH(secretHandle Handle, peerPublic []byte) (Handle, error)

	Delete(h Handle) error
}

// secretKind distinguishes what a handle's secret slot actually holds,
// so a handle minted for one purpose cannot be silently reused as
// another (e.g. an AEAD key handle passed to Sign).
type secretKind int

const (
	kindSigning secretKind = iota
	kindAEAD
	kindX25519
)

type secret struct {
	kind   secretKind
	scheme SigningScheme // only meaningful when kind == kindSigning
	// exactly one of the following is populated, per kind
	signingKey signingKey
	aeadKey    [32]byte
	x25519Priv [32]byte
}

// SoftwareVault is an in-process vault. Handles are random 16-byte ids;
// the secret table is a single mutex-guarded map.
type SoftwareVault struct {
	mu      sync.RWMutex
	secrets map[Handle]*secret
	log     zerolog.Logger
}

// New creates an empty SoftwareVault.
func New() *SoftwareVault {
	return &SoftwareVault{
		secrets: make(map[Handle]*secret),
		log:     ockamlog.WithComponent("vault"),
	}
}

func newHandle() (Handle, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("vault: generating handle: %w", err)
	}
	return Handle(hex.EncodeToString(buf)), nil
}

func (v *SoftwareVault) put(s *secret) (Handle, error) {
	h, err := newHandle()
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	v.secrets[h] = s
	v.mu.Unlock()
	return h, nil
}

func (v *SoftwareVault) get(h Handle) (*secret, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.secrets[h]
	return s, ok
}

// Delete removes a handle's secret. Idempotent: deleting an unknown or
// already-deleted handle is not an error.
func (v *SoftwareVault) Delete(h Handle) error {
	v.mu.Lock()
	delete(v.secrets, h)
	v.mu.Unlock()
	return nil
}

// SHA256 hashes data. Never fails; stdlib crypto/sha256 cannot error on
// arbitrary input.
func (v *SoftwareVault) SHA256(data []byte) [32]byte {
	return sha256Sum(data)
}
