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

// CredentialsRepository is a database/sql-backed
// repository.CredentialsRepository.
type CredentialsRepository struct {
	db *sql.DB
}

func (r *CredentialsRepository) Put(ctx context.Context, subject identity.Identifier, credential *identity.Credential) error {
	data, err := wireformat.Marshal(credential)
	if err != nil {
		return fmt.Errorf("repository/sql: encoding credential: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credentials (subject, credential) VALUES (?, ?)
		 ON CONFLICT(subject) DO UPDATE SET credential = excluded.credential`,
		subject.String(), data)
	return err
}

func (r *CredentialsRepository) Get(ctx context.Context, subject identity.Identifier) (*identity.Credential, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT credential FROM credentials WHERE subject = ?", subject.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: %w: no cached credential for %s", ockamerror.ErrNotFound, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("repository/sql: querying credential: %w", err)
	}

	var cred identity.Credential
	if err := wireformat.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("repository/sql: decoding credential: %w", err)
	}
	return &cred, nil
}
