package events

import (
	"context"
	"database/sql"
	"fmt"

	"time"

	"github.com/audit-engine/go-core/internal/pagination"
)

const eventColumns = `id, ts, source_ip, path, method, service, rule_id, rule_name, severity, action, latency_ms, country, env, created_at`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert implements Store. ON CONFLICT DO NOTHING plus the affected-row
// count turns a duplicate id into an explicit conflict instead of a silent
// no-op.
func (s *PostgresStore) Insert(ctx context.Context, e *Event) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, ts, source_ip, path, method, service,
			rule_id, rule_name, severity, action,
			latency_ms, country, env
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`,
		e.ID, e.TS, e.SourceIP, e.Path, e.Method, e.Service,
		e.RuleID, e.RuleName, string(e.Severity), string(e.Action),
		e.LatencyMs, e.Country, e.Env,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}
	return nil
}

// List implements Store using the pagination planner's seek predicate.
func (s *PostgresStore) List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Event, error) {
	where, args, argIndex := filterPredicates(f)

	plan := pagination.Build(cursor, sortCol, "id", order, limit, argIndex)
	if plan.Predicate != "" {
		where = append(where, plan.Predicate)
		args = append(args, plan.Args...)
	}

	query := fmt.Sprintf("SELECT %s FROM events", eventColumns)
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d", plan.OrderBy, plan.NextArg)
	args = append(args, plan.FetchLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args, _ := filterPredicates(f)

	query := "SELECT COUNT(*) FROM events"
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return total, nil
}

// TopRules implements Store.
func (s *PostgresStore) TopRules(ctx context.Context, since time.Time, limit int) ([]RuleCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, rule_name, COUNT(*) AS cnt, MAX(ts) AS last_seen
		FROM events
		WHERE ts >= $1
		GROUP BY rule_id, rule_name
		ORDER BY cnt DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query top rules: %w", err)
	}
	defer rows.Close()

	var out []RuleCount
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.RuleID, &rc.RuleName, &rc.Count, &rc.LastSeen); err != nil {
			return nil, fmt.Errorf("scan top rule: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func filterPredicates(f Filter) (where []string, args []interface{}, argIndex int) {
	argIndex = 1
	if f.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argIndex))
		args = append(args, string(f.Severity))
		argIndex++
	}
	if f.RuleID != "" {
		where = append(where, fmt.Sprintf("rule_id = $%d", argIndex))
		args = append(args, f.RuleID)
		argIndex++
	}
	if !f.DateFrom.IsZero() {
		where = append(where, fmt.Sprintf("ts >= $%d", argIndex))
		args = append(args, f.DateFrom)
		argIndex++
	}
	if !f.DateTo.IsZero() {
		where = append(where, fmt.Sprintf("ts <= $%d", argIndex))
		args = append(args, f.DateTo)
		argIndex++
	}
	return where, args, argIndex
}

func joinAnd(preds []string) string {
	out := preds[0]
	for _, p := range preds[1:] {
		out += " AND " + p
	}
	return out
}

func scanEvent(scanner interface{ Scan(dest ...interface{}) error }) (*Event, error) {
	var (
		e        Event
		severity string
		action   string
	)
	err := scanner.Scan(
		&e.ID, &e.TS, &e.SourceIP, &e.Path, &e.Method, &e.Service,
		&e.RuleID, &e.RuleName, &severity, &action,
		&e.LatencyMs, &e.Country, &e.Env, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.Severity = Severity(severity)
	e.Action = Disposition(action)
	return &e, nil
}
