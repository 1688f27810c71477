// Package auth provides user credentials, JWT access tokens, and role
// checks for the audit service. Logins and logouts feed the audit ledger.
package auth

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike, so responses do not leak which usernames exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserNotFound is returned by stores when a user id or name is absent.
var ErrUserNotFound = errors.New("user not found")

// Role orders privilege levels: viewer < analyst < admin.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

func (r Role) level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleAnalyst:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants the privileges of required.
func (r Role) AtLeast(required Role) bool {
	return r.level() >= required.level()
}

// User is one service account.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserStore looks up accounts.
type UserStore interface {
	// GetByUsername returns the user or ErrUserNotFound.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID returns the user or ErrUserNotFound.
	GetByID(ctx context.Context, id int64) (*User, error)
}
