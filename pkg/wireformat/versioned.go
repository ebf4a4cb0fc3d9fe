// Package wireformat holds the CBOR wire codec shared by the identity,
// credential, and secure channel subsystems. All versioned,
// signed bodies in the core go through VersionedData so that a single
// place governs CBOR struct-tag conventions and canonical encoding.
package wireformat

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is a deterministic CBOR encoder: canonical map key ordering and
// shortest-form integers, so that two semantically-equal bodies always
// serialize to the same bytes (required for signature verification to be
// reproducible across implementations).
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: building canonical CBOR encoder: %v", err))
	}
	return mode
}

// VersionedData wraps an opaque body with a version tag:
// `{version: u8, body: bytes}`. The body itself is a second CBOR-encoded
// structure specific to the caller (a Change body, a PurposeKey
// attestation body, a Credential body).
type VersionedData struct {
	Version uint8  `cbor:"1,keyasint"`
	Body    []byte `cbor:"2,keyasint"`
}

// Marshal CBOR-encodes v using the canonical encoder.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wireformat: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal CBOR-decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wireformat: unmarshal: %w", err)
	}
	return nil
}

// NewVersionedData CBOR-encodes body and wraps it at the given version.
func NewVersionedData(version uint8, body interface{}) (*VersionedData, []byte, error) {
	encodedBody, err := Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	vd := &VersionedData{Version: version, Body: encodedBody}
	encodedVD, err := Marshal(vd)
	if err != nil {
		return nil, nil, err
	}
	return vd, encodedVD, nil
}
