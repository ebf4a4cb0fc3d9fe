package identity

import (
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
)

// Identity is a verified change history paired with the identifier it
// resolves to.
type Identity struct {
	id      Identifier
	history *ChangeHistory
}

// NewVerifiedIdentity verifies history against v and, on success,
// returns the Identity it resolves to. Every constructor in this
// package verifies first: an Identity can never exist without having
// passed Verify.
func NewVerifiedIdentity(v vault.Vault, history *ChangeHistory) (*Identity, error) {
	id, err := history.Verify(v)
	if err != nil {
		return nil, err
	}
	return &Identity{id: id, history: history}, nil
}

// Identifier returns the identity's stable fingerprint.
func (i *Identity) Identifier() Identifier { return i.id }

// ChangeHistory returns the identity's verified change history.
func (i *Identity) ChangeHistory() *ChangeHistory { return i.history }

// LatestPublicKey returns the primary key currently in force.
func (i *Identity) LatestPublicKey() vault.PublicKey { return i.history.LatestPublicKey() }

// CreateIdentity generates a fresh Ed25519 primary key in v and returns
// the resulting single-change Identity. validFor
// is the lifetime of the initial primary key.
func CreateIdentity(v vault.Vault, validFor time.Duration) (*Identity, vault.Handle, error) {
	handle, err := v.GenerateSigningKey(vault.Ed25519)
	if err != nil {
		return nil, "", fmt.Errorf("identity: generating primary key: %w", err)
	}

	now := time.Now()
	change, err := buildChange(v, handle, nil, nil, false, now, now.Add(validFor))
	if err != nil {
		return nil, "", err
	}

	history := &ChangeHistory{Changes: []*Change{change}}
	id, err := history.Verify(v)
	if err != nil {
		return nil, "", fmt.Errorf("identity: newly created history failed verification: %w", err)
	}

	return &Identity{id: id, history: history}, handle, nil
}

// RotateKey appends a new change rotating the primary key, signed by
// both the outgoing and incoming keys. prevHandle
// is the vault handle for the current primary key; the returned handle
// is for the new one.
func RotateKey(v vault.Vault, identity *Identity, prevHandle vault.Handle, revokeAll bool, validFor time.Duration) (*Identity, vault.Handle, error) {
	newHandle, err := v.GenerateSigningKey(vault.Ed25519)
	if err != nil {
		return nil, "", fmt.Errorf("identity: generating rotated key: %w", err)
	}

	prev := identity.history.LatestChange()
	now := time.Now()
	change, err := buildChange(v, newHandle, &prevHandle, prev, revokeAll, now, now.Add(validFor))
	if err != nil {
		return nil, "", err
	}

	next := &ChangeHistory{Changes: append(append([]*Change{}, identity.history.Changes...), change)}
	id, err := next.Verify(v)
	if err != nil {
		return nil, "", fmt.Errorf("identity: rotated history failed verification: %w", err)
	}
	if id != identity.id {
		return nil, "", fmt.Errorf("identity: %w: rotation changed identifier", ockamerror.ErrConsistencyError)
	}

	return &Identity{id: id, history: next}, newHandle, nil
}

// ImportIdentity verifies an externally-supplied change history and
// returns the Identity it resolves to. This is the path used when
// accepting another party's identity over the wire. If expected is
// non-nil, the computed identifier must match it exactly, or the
// import fails with ErrIdentityVerificationFailed — this guards
// against a peer substituting a different, internally-consistent
// history for the one the caller asked to import.
func ImportIdentity(v vault.Vault, history *ChangeHistory, expected *Identifier) (*Identity, error) {
	id, err := NewVerifiedIdentity(v, history)
	if err != nil {
		return nil, err
	}
	if expected != nil && id.Identifier() != *expected {
		return nil, fmt.Errorf("identity: %w: imported history resolves to %s, expected %s",
			ockamerror.ErrIdentityVerificationFailed, id.Identifier(), *expected)
	}
	return id, nil
}
