package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ockam/ockam/pkg/identity"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/repository"
	"github.com/ockam/ockam/pkg/wireformat"
)

// IdentityAttributesRepository is a database/sql-backed
// repository.IdentityAttributesRepository.
type IdentityAttributesRepository struct {
	db *sql.DB
}

// Put writes entry unless an existing entry for the same subject was
// added more recently: two concurrent successful verifications for the
// same subject race to call Put, and the one with the older AddedAt
// must never clobber the one that actually arrived last. The
// read-compare-write happens inside one transaction so the comparison
// and the write are atomic with respect to any other Put.
func (r *IdentityAttributesRepository) Put(ctx context.Context, nodeName string, subject identity.Identifier, entry *repository.AttributesEntry) error {
	data, err := wireformat.Marshal(entry)
	if err != nil {
		return fmt.Errorf("repository/sql: encoding attributes entry: %w", err)
	}

	var expiresAt *int64
	if entry.Expiry != nil {
		unix := entry.Expiry.Unix()
		expiresAt = &unix
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository/sql: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existingAddedAt int64
	err = tx.QueryRowContext(ctx, "SELECT added_at FROM identity_attributes WHERE node_name = ? AND subject = ?",
		nodeName, subject.String()).Scan(&existingAddedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no existing entry to race against
	case err != nil:
		return fmt.Errorf("repository/sql: checking existing attributes entry: %w", err)
	case existingAddedAt > entry.AddedAt.Unix():
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO identity_attributes (node_name, subject, entry, expires_at, added_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(node_name, subject) DO UPDATE SET entry = excluded.entry, expires_at = excluded.expires_at, added_at = excluded.added_at`,
		nodeName, subject.String(), data, expiresAt, entry.AddedAt.Unix()); err != nil {
		return fmt.Errorf("repository/sql: writing attributes entry: %w", err)
	}
	return tx.Commit()
}

func (r *IdentityAttributesRepository) Get(ctx context.Context, nodeName string, subject identity.Identifier) (*repository.AttributesEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository/sql: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, "SELECT entry FROM identity_attributes WHERE node_name = ? AND subject = ?",
		nodeName, subject.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: %w: no attributes for %s at %s", ockamerror.ErrNotFound, subject, nodeName)
	}
	if err != nil {
		return nil, fmt.Errorf("repository/sql: querying attributes entry: %w", err)
	}

	var entry repository.AttributesEntry
	if err := wireformat.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("repository/sql: decoding attributes entry: %w", err)
	}

	if entry.Expired(time.Now()) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM identity_attributes WHERE node_name = ? AND subject = ?", nodeName, subject.String()); err != nil {
			return nil, err
		}
		return nil, tx.Commit()
	}

	return &entry, tx.Commit()
}

func (r *IdentityAttributesRepository) List(ctx context.Context, nodeName string) ([]repository.SubjectEntry, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT subject, entry FROM identity_attributes WHERE node_name = ?", nodeName)
	if err != nil {
		return nil, fmt.Errorf("repository/sql: listing attributes: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []repository.SubjectEntry
	var expiredSubjects []string
	for rows.Next() {
		var subjectHex string
		var data []byte
		if err := rows.Scan(&subjectHex, &data); err != nil {
			return nil, err
		}
		var entry repository.AttributesEntry
		if err := wireformat.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("repository/sql: decoding attributes entry: %w", err)
		}
		if entry.Expired(now) {
			expiredSubjects = append(expiredSubjects, subjectHex)
			continue
		}
		subject, err := identity.ParseIdentifier(subjectHex)
		if err != nil {
			return nil, fmt.Errorf("repository/sql: parsing stored subject: %w", err)
		}
		out = append(out, repository.SubjectEntry{Subject: subject, Entry: &entry})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, subjectHex := range expiredSubjects {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM identity_attributes WHERE node_name = ? AND subject = ?", nodeName, subjectHex); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *IdentityAttributesRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM identity_attributes WHERE expires_at IS NOT NULL AND expires_at <= ?", now.Unix())
	return err
}
