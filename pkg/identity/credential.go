package identity

import (
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// credentialVersion is the VersionedData.Version used for credential
// bodies.
const credentialVersion uint8 = 1

// CredentialBody is the CBOR-encoded body signed by a credentials
// authority's purpose key: a set of attributes
// bound to a subject, with a validity window.
type CredentialBody struct {
	Subject    Identifier        `cbor:"1,keyasint"`
	Attributes map[string][]byte `cbor:"2,keyasint"`
	CreatedAt  uint64            `cbor:"3,keyasint"`
	ExpiresAt  uint64            `cbor:"4,keyasint"`
}

// Credential is a signed, time-bounded attribute set issued by a
// trusted authority about a subject. Verification chains through the
// issuer's PurposeKeyAttestation back to the issuer's own ChangeHistory.
type Credential struct {
	Data      wireformat.VersionedData `cbor:"1,keyasint"`
	Signature vault.Signature          `cbor:"2,keyasint"`

	body CredentialBody
}

// Subject returns the identifier this credential was issued about.
func (c *Credential) Subject() Identifier { return c.body.Subject }

// Attributes returns the credential's attested attributes.
func (c *Credential) Attributes() map[string][]byte { return c.body.Attributes }

// ExpiresAt returns the credential's expiry.
func (c *Credential) ExpiresAt() time.Time {
	return time.Unix(int64(c.body.ExpiresAt), 0)
}

// IssueCredential signs a CredentialBody under issuerKeyHandle, the
// vault handle for the issuer's credentials purpose key. Callers are
// responsible for having verified that
// issuerKeyHandle corresponds to a live PurposeCredentials attestation.
func IssueCredential(v vault.Vault, issuerKeyHandle vault.Handle, subject Identifier, attrs map[string][]byte, validFor time.Duration) (*Credential, error) {
	now := time.Now()
	body := CredentialBody{
		Subject:    subject,
		Attributes: attrs,
		CreatedAt:  uint64(now.Unix()),
		ExpiresAt:  uint64(now.Add(validFor).Unix()),
	}

	vd, encoded, err := wireformat.NewVersionedData(credentialVersion, body)
	if err != nil {
		return nil, fmt.Errorf("identity: encoding credential: %w", err)
	}

	sig, err := v.Sign(issuerKeyHandle, encoded)
	if err != nil {
		return nil, fmt.Errorf("identity: signing credential: %w", err)
	}

	return &Credential{Data: *vd, Signature: sig, body: body}, nil
}

// VerifyCredential checks a credential against the issuer's purpose-key
// attestation and the issuer's change history: the
// attestation must verify for PurposeCredentials against issuerHistory
// at at, the credential's signature must verify under the attested
// purpose key, the credential must name subject, and it must not be
// expired. On success it returns the attested attributes, ready to be
// stored as a repository.AttributesEntry by the caller.
func VerifyCredential(v vault.Vault, issuerHistory *ChangeHistory, issuer Identifier, issuerAttestation *PurposeKeyAttestation, c *Credential, subject Identifier, at time.Time) (map[string][]byte, error) {
	if err := decodeCredentialBody(c); err != nil {
		return nil, fmt.Errorf("identity: %w: %v", ockamerror.ErrCredentialInvalid, err)
	}

	if err := VerifyPurposeKeyAttestation(v, issuerHistory, issuer, issuerAttestation, PurposeCredentials, at); err != nil {
		return nil, fmt.Errorf("identity: %w: issuer purpose key: %v", ockamerror.ErrCredentialInvalid, err)
	}

	if c.body.Subject != subject {
		return nil, fmt.Errorf("identity: %w: credential subject mismatch", ockamerror.ErrCredentialInvalid)
	}
	if uint64(at.Unix()) > c.body.ExpiresAt {
		return nil, fmt.Errorf("identity: %w: credential expired at %s", ockamerror.ErrCredentialExpired, c.ExpiresAt())
	}

	encoded, err := wireformat.Marshal(c.Data)
	if err != nil {
		return nil, fmt.Errorf("identity: %w: %v", ockamerror.ErrCredentialInvalid, err)
	}

	ok, err := v.Verify(issuerAttestation.PublicKey(), encoded, c.Signature)
	if err != nil {
		return nil, fmt.Errorf("identity: verifying credential: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("identity: %w: credential signature invalid", ockamerror.ErrCredentialInvalid)
	}

	return c.body.Attributes, nil
}

func decodeCredentialBody(c *Credential) error {
	return wireformat.Unmarshal(c.Data.Body, &c.body)
}
