// Package repository defines the durable key→value projections the core
// reads and writes: change histories, purpose-key
// attestations, identity attributes, policies, and a cached credential
// per subject. Three families of implementation exist — memory (a single
// mutex-guarded map per repository, for tests and durability-optional
// embedders), bbolt (a transactional key-value store, for
// production embedders) and sql (database/sql over sqlite) — all
// satisfying the interfaces below.
package repository

import (
	"context"
	"time"

	"github.com/ockam/ockam/pkg/abac"
	"github.com/ockam/ockam/pkg/identity"
)

// ChangeHistoryRepository stores one ChangeHistory per Identifier.
// update_if_newer must be atomic: read current, compare, conditionally
// replace, in a single transaction.
type ChangeHistoryRepository interface {
	Put(ctx context.Context, id identity.Identifier, history *identity.ChangeHistory) error
	Get(ctx context.Context, id identity.Identifier) (*identity.ChangeHistory, error)
	UpdateIfNewer(ctx context.Context, id identity.Identifier, history *identity.ChangeHistory) error
	Delete(ctx context.Context, id identity.Identifier) error
}

// PurposeKeysRepository stores one attestation per (subject, purpose).
type PurposeKeysRepository interface {
	Put(ctx context.Context, subject identity.Identifier, purpose identity.PurposeType, attestation *identity.PurposeKeyAttestation) error
	Get(ctx context.Context, subject identity.Identifier, purpose identity.PurposeType) (*identity.PurposeKeyAttestation, error)
	Delete(ctx context.Context, subject identity.Identifier, purpose identity.PurposeType) error
}

// AttributesEntry is the verifier-side record produced after accepting
// a credential, scoped per verifying node.
type AttributesEntry struct {
	Attributes map[string][]byte
	AddedAt    time.Time
	Expiry     *time.Time
	AttestedBy identity.Identifier
}

// Expired reports whether the entry's validity window has elapsed as of now.
func (e *AttributesEntry) Expired(now time.Time) bool {
	return e.Expiry != nil && now.After(*e.Expiry)
}

// IdentityAttributesRepository stores attribute entries scoped per node
// name. Entries expire lazily: a Get past expiry returns (nil, nil) and
// deletes the entry.
type IdentityAttributesRepository interface {
	Put(ctx context.Context, nodeName string, subject identity.Identifier, entry *AttributesEntry) error
	Get(ctx context.Context, nodeName string, subject identity.Identifier) (*AttributesEntry, error)
	List(ctx context.Context, nodeName string) ([]SubjectEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) error
}

// SubjectEntry pairs a subject identifier with its attribute entry, the
// shape List returns.
type SubjectEntry struct {
	Subject identity.Identifier
	Entry   *AttributesEntry
}

// PoliciesRepository stores one expression per (resource, action).
type PoliciesRepository interface {
	Put(ctx context.Context, resource, action string, expression *abac.Expression) error
	Get(ctx context.Context, resource, action string) (*abac.Expression, error)
	ListByResource(ctx context.Context, resource string) (map[string]*abac.Expression, error)
	Delete(ctx context.Context, resource, action string) error
}

// CredentialsRepository caches at most one credential per subject;
// each Put replaces the cached one without comparing them.
type CredentialsRepository interface {
	Put(ctx context.Context, subject identity.Identifier, credential *identity.Credential) error
	Get(ctx context.Context, subject identity.Identifier) (*identity.Credential, error)
}
