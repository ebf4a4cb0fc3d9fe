package identity

import (
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/vault"
	"github.com/ockam/ockam/pkg/wireformat"
)

// ChangeHistory is an ordered sequence of Changes.
type ChangeHistory struct {
	Changes []*Change `cbor:"1,keyasint"`
}

// Comparison is the result of comparing two histories for the same
// identifier.
type Comparison int

const (
	Equal Comparison = iota
	Newer
	Older
	Conflict
)

// Verify checks the five invariants of an append-only change history
// against v:
//
//	(i)   each non-initial change's previous_change equals the
//	      preceding change's hash;
//	(ii)  each change's self-signature verifies under its own primary key;
//	(iii) each non-initial change's previous-signature verifies under
//	      the preceding change's primary key;
//	(iv)  version numbers are non-decreasing;
//	(v)   the history is non-empty.
//
// On success it returns the computed Identifier (the hash of the first
// change); each change's decoded body is cached on the change itself.
func (h *ChangeHistory) Verify(v vault.Vault) (Identifier, error) {
	if len(h.Changes) == 0 {
		return Identifier{}, fmt.Errorf("identity: %w: empty change history", ockamerror.ErrIdentityVerificationFailed)
	}

	var prevVersion uint8
	var prev *Change
	var prevHash [20]byte

	for i, change := range h.Changes {
		if err := decodeChangeBody(change); err != nil {
			return Identifier{}, fmt.Errorf("identity: %w: %v", ockamerror.ErrIdentityVerificationFailed, err)
		}

		if change.Data.Version < prevVersion {
			return Identifier{}, fmt.Errorf("identity: %w: version %d decreased from %d at change %d",
				ockamerror.ErrIdentityVerificationFailed, change.Data.Version, prevVersion, i)
		}
		prevVersion = change.Data.Version

		encoded, err := wireformat.Marshal(change.Data)
		if err != nil {
			return Identifier{}, fmt.Errorf("identity: %w: %v", ockamerror.ErrIdentityVerificationFailed, err)
		}

		selfOK, err := v.Verify(change.body.PrimaryPublicKey, encoded, change.Signature)
		if err != nil {
			return Identifier{}, fmt.Errorf("identity: verifying self-signature: %w", err)
		}
		if !selfOK {
			return Identifier{}, fmt.Errorf("identity: %w: self-signature invalid at change %d", ockamerror.ErrIdentityVerificationFailed, i)
		}

		if i == 0 {
			if len(change.body.PreviousChange) != 0 {
				return Identifier{}, fmt.Errorf("identity: %w: first change must not reference a previous change", ockamerror.ErrIdentityVerificationFailed)
			}
			hash, err := change.Hash(v)
			if err != nil {
				return Identifier{}, err
			}
			prevHash = hash
			prev = change
			continue
		}

		if len(change.body.PreviousChange) != 20 {
			return Identifier{}, fmt.Errorf("identity: %w: missing previous_change at change %d", ockamerror.ErrIdentityVerificationFailed, i)
		}
		if !vault.ConstantTimeEqual(change.body.PreviousChange, prevHash[:]) {
			return Identifier{}, fmt.Errorf("identity: %w: previous_change mismatch at change %d", ockamerror.ErrIdentityVerificationFailed, i)
		}

		prevOK, err := v.Verify(prev.body.PrimaryPublicKey, encoded, change.PreviousSignature)
		if err != nil {
			return Identifier{}, fmt.Errorf("identity: verifying previous-signature: %w", err)
		}
		if !prevOK {
			return Identifier{}, fmt.Errorf("identity: %w: previous-signature invalid at change %d", ockamerror.ErrIdentityVerificationFailed, i)
		}

		hash, err := change.Hash(v)
		if err != nil {
			return Identifier{}, err
		}
		prevHash = hash
		prev = change
	}

	firstHash, err := h.Changes[0].Hash(v)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier(firstHash), nil
}

// LatestChange returns the most recent change in the history.
func (h *ChangeHistory) LatestChange() *Change {
	return h.Changes[len(h.Changes)-1]
}

// LatestPublicKey returns the primary key of the newest change.
func (h *ChangeHistory) LatestPublicKey() vault.PublicKey {
	return h.LatestChange().body.PrimaryPublicKey
}

// PrimaryKeyValidAt returns the newest primary public key whose validity
// window contains the given time, walking the history from newest to
// oldest. Older keys whose windows also contain that time are not
// returned.
func (h *ChangeHistory) PrimaryKeyValidAt(at time.Time) (vault.PublicKey, bool) {
	unixAt := uint64(at.Unix())
	for i := len(h.Changes) - 1; i >= 0; i-- {
		body := h.Changes[i].body
		if unixAt >= body.CreatedAt && unixAt <= body.ExpiresAt {
			return body.PrimaryPublicKey, true
		}
	}
	return vault.PublicKey{}, false
}

// Compare compares two histories believed to describe the same
// identifier. Conflict means both share a prefix but
// diverge — a security event.
func Compare(a, b *ChangeHistory) Comparison {
	minLen := len(a.Changes)
	if len(b.Changes) < minLen {
		minLen = len(b.Changes)
	}
	for i := 0; i < minLen; i++ {
		if !changesEqual(a.Changes[i], b.Changes[i]) {
			return Conflict
		}
	}
	switch {
	case len(a.Changes) == len(b.Changes):
		return Equal
	case len(a.Changes) > len(b.Changes):
		return Newer
	default:
		return Older
	}
}

func changesEqual(a, b *Change) bool {
	return string(a.Data.Body) == string(b.Data.Body) &&
		a.Data.Version == b.Data.Version &&
		string(a.Signature) == string(b.Signature) &&
		string(a.PreviousSignature) == string(b.PreviousSignature)
}
