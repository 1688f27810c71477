package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory UserStore used by tests and local
// development.
type MemoryUserStore struct {
	mu     sync.RWMutex
	byName map[string]*User
	byID   map[int64]*User
	nextID int64
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byName: make(map[string]*User),
		byID:   make(map[int64]*User),
		nextID: 1,
	}
}

// AddUser registers a user with an already-hashed password.
func (s *MemoryUserStore) AddUser(username, passwordHash string, role Role) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	s.nextID++
	s.byName[username] = u
	s.byID[u.ID] = u
	return u
}

// GetByUsername implements UserStore.
func (s *MemoryUserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByID implements UserStore.
func (s *MemoryUserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
