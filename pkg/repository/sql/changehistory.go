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

// ChangeHistoryRepository is a database/sql-backed
// repository.ChangeHistoryRepository.
type ChangeHistoryRepository struct {
	db *sql.DB
}

func (r *ChangeHistoryRepository) Put(ctx context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	data, err := wireformat.Marshal(history)
	if err != nil {
		return fmt.Errorf("repository/sql: encoding change history: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO change_histories (identifier, history, change_count) VALUES (?, ?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET history = excluded.history, change_count = excluded.change_count`,
		id.String(), data, len(history.Changes))
	return err
}

func (r *ChangeHistoryRepository) Get(ctx context.Context, id identity.Identifier) (*identity.ChangeHistory, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT history FROM change_histories WHERE identifier = ?", id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: %w: no change history for %s", ockamerror.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("repository/sql: querying change history: %w", err)
	}

	var history identity.ChangeHistory
	if err := wireformat.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("repository/sql: decoding change history: %w", err)
	}
	return &history, nil
}

// UpdateIfNewer runs the read-compare-write inside a single SQL
// transaction, the database/sql analogue of bbolt's single-writer
// transaction used for the same purpose in repository/bbolt.
func (r *ChangeHistoryRepository) UpdateIfNewer(ctx context.Context, id identity.Identifier, history *identity.ChangeHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository/sql: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existingData []byte
	err = tx.QueryRowContext(ctx, "SELECT history FROM change_histories WHERE identifier = ?", id.String()).Scan(&existingData)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		data, encErr := wireformat.Marshal(history)
		if encErr != nil {
			return fmt.Errorf("repository/sql: encoding change history: %w", encErr)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO change_histories (identifier, history, change_count) VALUES (?, ?, ?)",
			id.String(), data, len(history.Changes)); err != nil {
			return err
		}
		return tx.Commit()
	case err != nil:
		return fmt.Errorf("repository/sql: querying change history: %w", err)
	}

	var existing identity.ChangeHistory
	if err := wireformat.Unmarshal(existingData, &existing); err != nil {
		return fmt.Errorf("repository/sql: decoding stored change history: %w", err)
	}

	switch identity.Compare(history, &existing) {
	case identity.Newer:
		data, err := wireformat.Marshal(history)
		if err != nil {
			return fmt.Errorf("repository/sql: encoding change history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE change_histories SET history = ?, change_count = ? WHERE identifier = ?",
			data, len(history.Changes), id.String()); err != nil {
			return err
		}
		return tx.Commit()
	case identity.Conflict:
		return fmt.Errorf("repository: %w: change history for %s conflicts with stored history", ockamerror.ErrConsistencyError, id)
	default:
		return tx.Commit()
	}
}

func (r *ChangeHistoryRepository) Delete(ctx context.Context, id identity.Identifier) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM change_histories WHERE identifier = ?", id.String())
	return err
}
