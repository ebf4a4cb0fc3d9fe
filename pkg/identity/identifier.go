// Package identity implements self-sovereign, append-only cryptographic
// identities: change histories with key rotation, purpose-key
// attestations, and credentials.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// identifierPrefix is the fixed prefix on the wire serialization of an
// Identifier: hex of the 20-byte first-change hash, prefixed with "I".
const identifierPrefix = "I"

// identifierLen is the digest length in bytes: a 20-byte digest of the
// first change in an identity's history.
const identifierLen = 20

// Identifier is the 20-byte fingerprint of an identity's first change,
// stable across key rotations.
type Identifier [identifierLen]byte

// String renders the identifier as hex, prefixed with "I".
func (id Identifier) String() string {
	return identifierPrefix + hex.EncodeToString(id[:])
}

// ParseIdentifier parses the wire serialization of an Identifier.
// Parsing is case-insensitive on the hex but rejects unknown prefixes.
func ParseIdentifier(s string) (Identifier, error) {
	if len(s) == 0 || !strings.HasPrefix(s, identifierPrefix) {
		return Identifier{}, fmt.Errorf("identity: identifier must start with %q: %q", identifierPrefix, s)
	}
	raw, err := hex.DecodeString(strings.ToLower(s[len(identifierPrefix):]))
	if err != nil {
		return Identifier{}, fmt.Errorf("identity: decoding identifier hex: %w", err)
	}
	if len(raw) != identifierLen {
		return Identifier{}, fmt.Errorf("identity: identifier must decode to %d bytes, got %d", identifierLen, len(raw))
	}
	var id Identifier
	copy(id[:], raw)
	return id, nil
}

// IsZero reports whether id is the zero-value identifier (never a valid
// identity; used as a sentinel for "no identifier yet").
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

// MarshalCBOR encodes id as a CBOR byte string rather than the default
// 20-element array of integers reflect.Array would otherwise produce.
func (id Identifier) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(id[:])
}

// UnmarshalCBOR decodes id from the byte-string form written by
// MarshalCBOR.
func (id *Identifier) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != identifierLen {
		return fmt.Errorf("identity: identifier must decode to %d bytes, got %d", identifierLen, len(raw))
	}
	copy(id[:], raw)
	return nil
}
