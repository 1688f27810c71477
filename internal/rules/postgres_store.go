package rules

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/audit-engine/go-core/internal/pagination"
)

const ruleColumns = `id, name, description, pattern, severity, status, created_by, created_at, updated_at`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed rule store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, r *Rule) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rules (name, description, pattern, severity, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, r.Name, r.Description, r.Pattern, r.Severity, string(r.Status), r.CreatedBy).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM rules WHERE id = $1", ruleColumns), id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, r *Rule) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE rules
		SET name = $1, description = $2, pattern = $3, severity = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`, r.Name, r.Description, r.Pattern, r.Severity, r.ID).Scan(&r.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %d", ErrNotFound, r.ID)
	}
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return nil
}

// UpdateStatus implements Store.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status Status) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE rules
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING %s
	`, ruleColumns), string(status), id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// List implements Store using the pagination planner's seek predicate.
func (s *PostgresStore) List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Rule, error) {
	var (
		where    []string
		args     []interface{}
		argIndex = 1
	)
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(f.Status))
		argIndex++
	}

	plan := pagination.Build(cursor, sortCol, "id", order, limit, argIndex)
	if plan.Predicate != "" {
		where = append(where, plan.Predicate)
		args = append(args, plan.Args...)
	}

	query := fmt.Sprintf("SELECT %s FROM rules", ruleColumns)
	if len(where) > 0 {
		query += " WHERE " + where[0]
		for _, p := range where[1:] {
			query += " AND " + p
		}
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d", plan.OrderBy, plan.NextArg)
	args = append(args, plan.FetchLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int64, error) {
	query := "SELECT COUNT(*) FROM rules"
	var args []interface{}
	if f.Status != "" {
		query += " WHERE status = $1"
		args = append(args, string(f.Status))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return total, nil
}

func scanRule(scanner interface{ Scan(dest ...interface{}) error }) (*Rule, error) {
	var (
		r      Rule
		status string
	)
	err := scanner.Scan(
		&r.ID, &r.Name, &r.Description, &r.Pattern, &r.Severity,
		&status, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Status = Status(status)
	return &r, nil
}
