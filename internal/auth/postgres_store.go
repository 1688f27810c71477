package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresUserStore implements UserStore on PostgreSQL.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a PostgreSQL-backed user store.
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// GetByUsername implements UserStore.
func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.get(ctx, "SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1", username)
}

// GetByID implements UserStore.
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.get(ctx, "SELECT id, username, password_hash, role, created_at FROM users WHERE id = $1", id)
}

func (s *PostgresUserStore) get(ctx context.Context, query string, arg interface{}) (*User, error) {
	var (
		u    User
		role string
	)
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}
