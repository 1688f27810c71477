package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/audit-engine/go-core/internal/pagination"
)

// ledgerLockKey is the advisory lock key serializing appends. Every writer
// process takes this transaction-scoped lock before reading the tail, so
// concurrent appends across instances serialize on the database and the
// chain cannot fork.
const ledgerLockKey = int64(0x41554449) // "AUDI"

const entryColumns = `id, actor_id, actor_name, action, target, metadata, timestamp, hash, previous_hash, created_at`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append implements Store. The advisory lock plus the insert run in one
// transaction, so either the full row commits or nothing does.
func (s *PostgresStore) Append(ctx context.Context, build func(tailHash *string) (*Entry, error)) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", ledgerLockKey); err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}

	var tail sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT hash FROM audit_entries ORDER BY id DESC LIMIT 1").Scan(&tail)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read tail hash: %w", err)
	}

	var tailHash *string
	if tail.Valid {
		tailHash = &tail.String
	}

	entry, err := build(tailHash)
	if err != nil {
		return nil, err
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal entry metadata: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO audit_entries (
			actor_id, actor_name, action, target, metadata,
			timestamp, hash, previous_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		entry.ActorID,
		entry.ActorName,
		string(entry.Action),
		nullString(entry.Target),
		metadataJSON,
		entry.Timestamp,
		entry.Hash,
		nullString(entry.PreviousHash),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}
	return entry, nil
}

// Walk implements Store, streaming ascending id batches.
func (s *PostgresStore) Walk(ctx context.Context, batchSize int, fn func(*Entry) error) error {
	var lastID int64
	for {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s FROM audit_entries
			WHERE id > $1
			ORDER BY id ASC
			LIMIT $2
		`, entryColumns), lastID, batchSize)
		if err != nil {
			return fmt.Errorf("query audit batch: %w", err)
		}

		n := 0
		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if err := fn(entry); err != nil {
				rows.Close()
				return err
			}
			lastID = entry.ID
			n++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate audit batch: %w", err)
		}
		rows.Close()

		if n < batchSize {
			return nil
		}
	}
}

// List implements Store using the pagination planner's seek predicate.
func (s *PostgresStore) List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Entry, error) {
	where, args, argIndex := filterPredicates(f)

	plan := pagination.Build(cursor, sortCol, "id", order, limit, argIndex)
	if plan.Predicate != "" {
		where = append(where, plan.Predicate)
		args = append(args, plan.Args...)
	}

	query := fmt.Sprintf("SELECT %s FROM audit_entries", entryColumns)
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d", plan.OrderBy, plan.NextArg)
	args = append(args, plan.FetchLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int64, error) {
	where, args, _ := filterPredicates(f)

	query := "SELECT COUNT(*) FROM audit_entries"
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return total, nil
}

func filterPredicates(f Filter) (where []string, args []interface{}, argIndex int) {
	argIndex = 1
	if f.ActorName != "" {
		where = append(where, fmt.Sprintf("actor_name = $%d", argIndex))
		args = append(args, f.ActorName)
		argIndex++
	}
	if f.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", argIndex))
		args = append(args, string(f.Action))
		argIndex++
	}
	if !f.DateFrom.IsZero() {
		where = append(where, fmt.Sprintf("timestamp >= $%d", argIndex))
		args = append(args, f.DateFrom)
		argIndex++
	}
	if !f.DateTo.IsZero() {
		where = append(where, fmt.Sprintf("timestamp <= $%d", argIndex))
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

func scanEntry(scanner interface{ Scan(dest ...interface{}) error }) (*Entry, error) {
	var (
		entry        Entry
		action       string
		target       sql.NullString
		previousHash sql.NullString
		metadataJSON []byte
	)

	err := scanner.Scan(
		&entry.ID,
		&entry.ActorID,
		&entry.ActorName,
		&action,
		&target,
		&metadataJSON,
		&entry.Timestamp,
		&entry.Hash,
		&previousHash,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}

	entry.Action = Action(action)
	if target.Valid {
		entry.Target = &target.String
	}
	if previousHash.Valid {
		entry.PreviousHash = &previousHash.String
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
		}
	}
	return &entry, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
