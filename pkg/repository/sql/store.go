package sql

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store opens a SQL database, runs pending migrations, and exposes one
// repository implementation per table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at path and
// migrates it to the current schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository/sql: opening database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB, for callers that need to run
// ad hoc queries or share the connection with other subsystems.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) ChangeHistories() *ChangeHistoryRepository {
	return &ChangeHistoryRepository{db: s.db}
}

func (s *Store) PurposeKeys() *PurposeKeysRepository {
	return &PurposeKeysRepository{db: s.db}
}

func (s *Store) Attributes() *IdentityAttributesRepository {
	return &IdentityAttributesRepository{db: s.db}
}

func (s *Store) Policies() *PoliciesRepository {
	return &PoliciesRepository{db: s.db}
}

func (s *Store) Credentials() *CredentialsRepository {
	return &CredentialsRepository{db: s.db}
}
