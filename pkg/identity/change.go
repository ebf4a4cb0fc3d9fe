package identity

import (
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// changeVersion is the VersionedData.Version used for Change bodies.
const changeVersion uint8 = 1

// ChangeBody is the CBOR-encoded body signed by a Change:
// `{previous_change?, primary_public_key, revoke_all_purpose_keys,
// created_at, expires_at}`.
type ChangeBody struct {
	PreviousChange      []byte          `cbor:"1,keyasint,omitempty"`
	PrimaryPublicKey    vault.PublicKey `cbor:"2,keyasint"`
	RevokeAllPurposeKeys bool           `cbor:"3,keyasint"`
	CreatedAt           uint64         `cbor:"4,keyasint"`
	ExpiresAt           uint64         `cbor:"5,keyasint"`
}

// Change is one append-only entry in an identity's history.
type Change struct {
	Data               wireformat.VersionedData `cbor:"1,keyasint"`
	Signature          vault.Signature          `cbor:"2,keyasint"`
	PreviousSignature  vault.Signature          `cbor:"3,keyasint,omitempty"`

	// body is the decoded ChangeBody, cached alongside Data so callers
	// don't re-decode on every access.
	body ChangeBody
}

// Body returns the decoded ChangeBody.
func (c *Change) Body() ChangeBody { return c.body }

// Hash returns the first 20 bytes of SHA-256 over the versioned body.
func (c *Change) Hash(v vault.Vault) ([20]byte, error) {
	encoded, err := wireformat.Marshal(c.Data)
	if err != nil {
		return [20]byte{}, fmt.Errorf("identity: encoding change for hashing: %w", err)
	}
	digest := v.SHA256(encoded)
	var out [20]byte
	copy(out[:], digest[:20])
	return out, nil
}

// buildChange constructs, self-signs, and (if prev is non-nil)
// previous-signs a new Change. primaryHandle is the vault handle for
// the new primary key; prevHandle, if non-nil, is the previous change's
// primary key handle.
func buildChange(v vault.Vault, primaryHandle vault.Handle, prevHandle *vault.Handle, prev *Change, revokeAll bool, createdAt, expiresAt time.Time) (*Change, error) {
	pub, err := v.VerifyingPublicKey(primaryHandle)
	if err != nil {
		return nil, fmt.Errorf("identity: reading primary public key: %w", err)
	}

	body := ChangeBody{
		PrimaryPublicKey:     pub,
		RevokeAllPurposeKeys: revokeAll,
		CreatedAt:            uint64(createdAt.Unix()),
		ExpiresAt:            uint64(expiresAt.Unix()),
	}
	if prev != nil {
		prevHash, err := prev.Hash(v)
		if err != nil {
			return nil, err
		}
		body.PreviousChange = prevHash[:]
	}

	vd, encoded, err := wireformat.NewVersionedData(changeVersion, body)
	if err != nil {
		return nil, fmt.Errorf("identity: encoding change body: %w", err)
	}

	selfSig, err := v.Sign(primaryHandle, encoded)
	if err != nil {
		return nil, fmt.Errorf("identity: self-signing change: %w", err)
	}

	change := &Change{Data: *vd, Signature: selfSig, body: body}

	if prevHandle != nil {
		prevSig, err := v.Sign(*prevHandle, encoded)
		if err != nil {
			return nil, fmt.Errorf("identity: previous-signing change: %w", err)
		}
		change.PreviousSignature = prevSig
	}

	return change, nil
}

// decodeChangeBody decodes and caches the body of a Change freshly
// parsed off the wire (e.g. after CBOR unmarshaling leaves body unset).
func decodeChangeBody(c *Change) error {
	if err := wireformat.Unmarshal(c.Data.Body, &c.body); err != nil {
		return fmt.Errorf("identity: decoding change body: %w", err)
	}
	return nil
}
