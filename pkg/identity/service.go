package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ockam/ockam/pkg/ockamlog"
	"github.com/ockam/ockam/pkg/vault"
)

// DefaultPrimaryKeyValidity is the lifetime assigned to a newly created
// or rotated primary key when the caller doesn't specify one.
const DefaultPrimaryKeyValidity = 10 * 365 * 24 * time.Hour

// ChangeHistoryStore is the subset of repository.ChangeHistoryRepository
// the Service depends on, named locally to avoid importing pkg/repository
// (which itself imports pkg/identity).
type ChangeHistoryStore interface {
	Put(ctx context.Context, id Identifier, history *ChangeHistory) error
	Get(ctx context.Context, id Identifier) (*ChangeHistory, error)
	UpdateIfNewer(ctx context.Context, id Identifier, history *ChangeHistory) error
}

// Service is the identities lifecycle manager: it creates,
// rotates, imports, and persists identities, mirroring the
// generate-then-persist shape of a certificate authority that keeps its
// root material in a backing store rather than only in memory.
type Service struct {
	vault vault.Vault
	store ChangeHistoryStore
	log   zerolog.Logger
}

// NewService builds an identities Service over v and store.
func NewService(v vault.Vault, store ChangeHistoryStore) *Service {
	return &Service{vault: v, store: store, log: ockamlog.WithComponent("identity")}
}

// Create generates a new identity and persists its change history
//. It returns the Identity and the vault handle
// for its primary key — the caller is responsible for keeping that
// handle (or the means to re-derive it) for future rotation.
func (s *Service) Create(ctx context.Context, validFor time.Duration) (*Identity, vault.Handle, error) {
	if validFor <= 0 {
		validFor = DefaultPrimaryKeyValidity
	}

	id, handle, err := CreateIdentity(s.vault, validFor)
	if err != nil {
		return nil, "", err
	}

	if err := s.store.Put(ctx, id.Identifier(), id.ChangeHistory()); err != nil {
		return nil, "", fmt.Errorf("identity: persisting new identity: %w", err)
	}

	s.log.Info().Stringer("identifier", id.Identifier()).Msg("identity created")
	return id, handle, nil
}

// Rotate rotates identifier's primary key and persists the extended
// change history. prevHandle is the vault handle
// for the current primary key.
func (s *Service) Rotate(ctx context.Context, identifier Identifier, prevHandle vault.Handle, revokeAll bool, validFor time.Duration) (*Identity, vault.Handle, error) {
	if validFor <= 0 {
		validFor = DefaultPrimaryKeyValidity
	}

	history, err := s.store.Get(ctx, identifier)
	if err != nil {
		return nil, "", fmt.Errorf("identity: loading history to rotate: %w", err)
	}

	current, err := NewVerifiedIdentity(s.vault, history)
	if err != nil {
		return nil, "", err
	}

	rotated, newHandle, err := RotateKey(s.vault, current, prevHandle, revokeAll, validFor)
	if err != nil {
		return nil, "", err
	}

	if err := s.store.UpdateIfNewer(ctx, identifier, rotated.ChangeHistory()); err != nil {
		return nil, "", fmt.Errorf("identity: persisting rotated identity: %w", err)
	}

	s.log.Info().Stringer("identifier", identifier).Msg("identity key rotated")
	return rotated, newHandle, nil
}

// Import verifies and persists an externally supplied change history
//, e.g. one received from a peer during secure
// channel establishment. If expected is non-nil, the computed
// identifier must match it or the import fails with
// ErrIdentityVerificationFailed. If a history is already on file for
// the resulting identifier, UpdateIfNewer resolves which one wins.
func (s *Service) Import(ctx context.Context, history *ChangeHistory, expected *Identifier) (*Identity, error) {
	id, err := ImportIdentity(s.vault, history, expected)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateIfNewer(ctx, id.Identifier(), history); err != nil {
		return nil, fmt.Errorf("identity: persisting imported identity: %w", err)
	}

	return id, nil
}

// Resolve loads and verifies the identity on file for identifier.
func (s *Service) Resolve(ctx context.Context, identifier Identifier) (*Identity, error) {
	history, err := s.store.Get(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("identity: loading history: %w", err)
	}
	return NewVerifiedIdentity(s.vault, history)
}
