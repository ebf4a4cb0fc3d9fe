package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ockam/ockam/pkg/abac"
	"github.com/ockam/ockam/pkg/ockamerror"
	"github.com/ockam/ockam/pkg/wireformat"
)

// PoliciesRepository is a database/sql-backed repository.PoliciesRepository.
type PoliciesRepository struct {
	db *sql.DB
}

func (r *PoliciesRepository) Put(ctx context.Context, resource, action string, expression *abac.Expression) error {
	data, err := wireformat.Marshal(expression)
	if err != nil {
		return fmt.Errorf("repository/sql: encoding policy expression: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO policies (resource, action, expression) VALUES (?, ?, ?)
		 ON CONFLICT(resource, action) DO UPDATE SET expression = excluded.expression`,
		resource, action, data)
	return err
}

func (r *PoliciesRepository) Get(ctx context.Context, resource, action string) (*abac.Expression, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT expression FROM policies WHERE resource = ? AND action = ?", resource, action).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository: %w: no policy for %s/%s", ockamerror.ErrNotFound, resource, action)
	}
	if err != nil {
		return nil, fmt.Errorf("repository/sql: querying policy: %w", err)
	}

	var expr abac.Expression
	if err := wireformat.Unmarshal(data, &expr); err != nil {
		return nil, fmt.Errorf("repository/sql: decoding policy: %w", err)
	}
	return &expr, nil
}

func (r *PoliciesRepository) ListByResource(ctx context.Context, resource string) (map[string]*abac.Expression, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT action, expression FROM policies WHERE resource = ?", resource)
	if err != nil {
		return nil, fmt.Errorf("repository/sql: listing policies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*abac.Expression)
	for rows.Next() {
		var action string
		var data []byte
		if err := rows.Scan(&action, &data); err != nil {
			return nil, err
		}
		var expr abac.Expression
		if err := wireformat.Unmarshal(data, &expr); err != nil {
			return nil, fmt.Errorf("repository/sql: decoding policy: %w", err)
		}
		out[action] = &expr
	}
	return out, rows.Err()
}

func (r *PoliciesRepository) Delete(ctx context.Context, resource, action string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM policies WHERE resource = ? AND action = ?", resource, action)
	return err
}
