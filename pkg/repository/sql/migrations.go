// Package sql implements the repository interfaces over
// database/sql, for embedders that already run a SQL database rather
// than carry bbolt as a second storage engine.
//
// The migration runner is adapted from
// internal/database.MigrateContext's shape (forward-only, versioned,
// one transaction per migration, a schema_migrations tracking table)
// rather than from a source that never uses SQL — see DESIGN.md.
package sql

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward-only schema change, identified by a
// monotonically increasing version number.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// migrations is the repository schema's full, ordered migration set.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "change_histories",
		UpSQL: `
			CREATE TABLE change_histories (
				identifier  TEXT PRIMARY KEY,
				history     BLOB NOT NULL,
				change_count INTEGER NOT NULL
			);
		`,
	},
	{
		Version: 2,
		Name:    "purpose_keys",
		UpSQL: `
			CREATE TABLE purpose_keys (
				subject     TEXT NOT NULL,
				purpose     INTEGER NOT NULL,
				attestation BLOB NOT NULL,
				PRIMARY KEY (subject, purpose)
			);
		`,
	},
	{
		Version: 3,
		Name:    "identity_attributes",
		UpSQL: `
			CREATE TABLE identity_attributes (
				node_name  TEXT NOT NULL,
				subject    TEXT NOT NULL,
				entry      BLOB NOT NULL,
				expires_at INTEGER,
				PRIMARY KEY (node_name, subject)
			);
		`,
	},
	{
		Version: 4,
		Name:    "policies",
		UpSQL: `
			CREATE TABLE policies (
				resource   TEXT NOT NULL,
				action     TEXT NOT NULL,
				expression BLOB NOT NULL,
				PRIMARY KEY (resource, action)
			);
		`,
	},
	{
		Version: 5,
		Name:    "credentials",
		UpSQL: `
			CREATE TABLE credentials (
				subject    TEXT PRIMARY KEY,
				credential BLOB NOT NULL
			);
		`,
	},
	{
		Version: 6,
		Name:    "identity_attributes_added_at",
		UpSQL: `
			ALTER TABLE identity_attributes ADD COLUMN added_at INTEGER NOT NULL DEFAULT 0;
		`,
	},
}

const migrationTableSQL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name    TEXT NOT NULL
	);
`

// Migrate applies every migration not yet recorded in
// schema_migrations, each inside its own transaction, in ascending
// version order. It is idempotent: calling it against an up-to-date
// database is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, migrationTableSQL); err != nil {
		return fmt.Errorf("repository/sql: creating schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("repository/sql: applying migration %d_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("repository/sql: querying schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("repository/sql: scanning schema_migrations: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
