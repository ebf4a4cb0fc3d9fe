package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// PurposeKeysRepository is a database/sql-backed
// repository.PurposeKeysRepository.
type PurposeKeysRepository struct {
	db *sql.DB
}

func (r *PurposeKeysRepository) Put(ctx context.Context, subject identity.Identifier, purpose identity.PurposeType, attestation *identity.PurposeKeyAttestation) error {
	data, err := wireformat.Marshal(attestation)
	if err != nil {
		return fmt.Errorf("repository/sql: encoding purpose key attestation: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO purpose_keys (subject, purpose, attestation) VALUES (?, ?, ?)
		 ON CONFLICT(subject, purpose) DO UPDATE SET attestation = excluded.attestation`,
		subject.String(), int(purpose), data)
	return err
}

func (r *PurposeKeysRepository) Get(ctx context.Context, subject identity.Identifier, purpose identity.PurposeType) (*identity.PurposeKeyAttestation, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT attestation FROM purpose_keys WHERE subject = ? AND purpose = ?",
		subject.String(), int(purpose)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: %w: no %s purpose key for %s", ockamerror.ErrNotFound, purpose, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("repository/sql: querying purpose key attestation: %w", err)
	}

	var attestation identity.PurposeKeyAttestation
	if err := wireformat.Unmarshal(data, &attestation); err != nil {
		return nil, fmt.Errorf("repository/sql: decoding purpose key attestation: %w", err)
	}
	return &attestation, nil
}

func (r *PurposeKeysRepository) Delete(ctx context.Context, subject identity.Identifier, purpose identity.PurposeType) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM purpose_keys WHERE subject = ? AND purpose = ?", subject.String(), int(purpose))
	return err
}
