package identity

import (
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// PurposeType distinguishes the two purposes a purpose key may be
// attested for: secure-channel static keys and
// credential-signing keys. A single subject may hold one active
// purpose key per purpose.
type PurposeType int

const (
	PurposeSecureChannel PurposeType = iota
	PurposeCredentials
)

func (p PurposeType) String() string {
	switch p {
	case PurposeSecureChannel:
		return "secure-channel"
	case PurposeCredentials:
		return "credentials"
	default:
		return fmt.Sprintf("purpose(%d)", int(p))
	}
}

// purposeKeyVersion is the VersionedData.Version used for purpose-key
// attestation bodies.
const purposeKeyVersion uint8 = 1

// purposeKeyBody is the CBOR-encoded body signed by the subject's
// primary key: binds a purpose-key public key, a purpose,
// and a validity window to the subject identifier.
type purposeKeyBody struct {
	Subject   Identifier      `cbor:"1,keyasint"`
	Purpose   PurposeType     `cbor:"2,keyasint"`
	PublicKey vault.PublicKey `cbor:"3,keyasint"`
	CreatedAt uint64          `cbor:"4,keyasint"`
	ExpiresAt uint64          `cbor:"5,keyasint"`
}

// PurposeKeyAttestation is a subject's signed statement that a given
// public key may be used, for a bounded time, for a specific purpose
//. It is verified against the subject's ChangeHistory, not
// against the purpose key itself — the purpose key has no say over its
// own validity.
type PurposeKeyAttestation struct {
	Data      wireformat.VersionedData `cbor:"1,keyasint"`
	Signature vault.Signature          `cbor:"2,keyasint"`

	body purposeKeyBody
}

// Subject returns the identifier this attestation was issued for.
func (a *PurposeKeyAttestation) Subject() Identifier { return a.body.Subject }

// Purpose returns the purpose this attestation authorizes.
func (a *PurposeKeyAttestation) Purpose() PurposeType { return a.body.Purpose }

// PublicKey returns the attested purpose-key public key.
func (a *PurposeKeyAttestation) PublicKey() vault.PublicKey { return a.body.PublicKey }

// ExpiresAt returns the attestation's expiry as a time.Time.
func (a *PurposeKeyAttestation) ExpiresAt() time.Time {
	return time.Unix(int64(a.body.ExpiresAt), 0)
}

// CreatePurposeKey generates a new signing key in v for the given
// purpose and attests it under subjectHandle, the vault handle for the
// subject's current primary key. It returns the
// attestation and the vault handle for the new purpose key.
func CreatePurposeKey(v vault.Vault, subject Identifier, subjectHandle vault.Handle, purpose PurposeType, validFor time.Duration) (*PurposeKeyAttestation, vault.Handle, error) {
	scheme := vault.Ed25519
	handle, err := v.GenerateSigningKey(scheme)
	if err != nil {
		return nil, "", fmt.Errorf("identity: generating purpose key: %w", err)
	}

	pub, err := v.VerifyingPublicKey(handle)
	if err != nil {
		return nil, "", fmt.Errorf("identity: reading purpose key public key: %w", err)
	}

	now := time.Now()
	body := purposeKeyBody{
		Subject:   subject,
		Purpose:   purpose,
		PublicKey: pub,
		CreatedAt: uint64(now.Unix()),
		ExpiresAt: uint64(now.Add(validFor).Unix()),
	}

	vd, encoded, err := wireformat.NewVersionedData(purposeKeyVersion, body)
	if err != nil {
		return nil, "", fmt.Errorf("identity: encoding purpose key attestation: %w", err)
	}

	sig, err := v.Sign(subjectHandle, encoded)
	if err != nil {
		return nil, "", fmt.Errorf("identity: signing purpose key attestation: %w", err)
	}

	return &PurposeKeyAttestation{Data: *vd, Signature: sig, body: body}, handle, nil
}

// VerifyPurposeKeyAttestation checks that a attests a key for purpose
// on behalf of the identity described by history, at time at: the
// subject field must match history's identifier, the
// attestation's signature must verify under some primary key whose
// window contains at (so a key rotated out since still counts),
// the purpose must match, and the attestation must not be expired.
func VerifyPurposeKeyAttestation(v vault.Vault, history *ChangeHistory, subject Identifier, a *PurposeKeyAttestation, purpose PurposeType, at time.Time) error {
	if err := decodePurposeKeyBody(a); err != nil {
		return fmt.Errorf("identity: %w: %v", ockamerror.ErrIdentityVerificationFailed, err)
	}

	if a.body.Subject != subject {
		return fmt.Errorf("identity: %w: purpose key attestation subject mismatch", ockamerror.ErrIdentityVerificationFailed)
	}
	if a.body.Purpose != purpose {
		return fmt.Errorf("identity: %w: purpose key attestation purpose mismatch: want %s, got %s", ockamerror.ErrIdentityVerificationFailed, purpose, a.body.Purpose)
	}
	if uint64(at.Unix()) > a.body.ExpiresAt {
		return fmt.Errorf("identity: %w: purpose key attestation expired at %s", ockamerror.ErrCredentialExpired, a.ExpiresAt())
	}

	encoded, err := wireformat.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("identity: %w: %v", ockamerror.ErrIdentityVerificationFailed, err)
	}

	// A rotation leaves the previous primary key's window open, so every
	// primary key in force at at is tried, newest first.
	unixAt := uint64(at.Unix())
	found := false
	for i := len(history.Changes) - 1; i >= 0; i-- {
		body := history.Changes[i].body
		if unixAt < body.CreatedAt || unixAt > body.ExpiresAt {
			continue
		}
		found = true
		ok, err := v.Verify(body.PrimaryPublicKey, encoded, a.Signature)
		if err != nil {
			return fmt.Errorf("identity: verifying purpose key attestation: %w", err)
		}
		if ok {
			return nil
		}
	}
	if !found {
		return fmt.Errorf("identity: %w: no primary key valid at %s", ockamerror.ErrIdentityVerificationFailed, at)
	}
	return fmt.Errorf("identity: %w: purpose key attestation signature invalid", ockamerror.ErrIdentityVerificationFailed)
}

func decodePurposeKeyBody(a *PurposeKeyAttestation) error {
	return wireformat.Unmarshal(a.Data.Body, &a.body)
}
