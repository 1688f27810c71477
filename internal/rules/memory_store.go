package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/audit-engine/go-core/internal/pagination"
)

const cursorTimeLayout = "2006-01-02T15:04:05.000Z"

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	rules  map[int64]*Rule
	nextID int64
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[int64]*Rule), nextID: 1}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, r *Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	r.ID = s.nextID
	r.CreatedAt = now
	r.UpdatedAt = now
	s.nextID++

	cp := *r
	s.rules[r.ID] = &cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id int64) (*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, r *Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, r.ID)
	}
	existing.Name = r.Name
	existing.Description = r.Description
	existing.Pattern = r.Pattern
	existing.Severity = r.Severity
	existing.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	r.UpdatedAt = existing.UpdatedAt
	return nil
}

// UpdateStatus implements Store.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id int64, status Status) (*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	cp := *r
	return &cp, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(s.rules, id)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		cp := *r
		rows = append(rows, &cp)
	}
	s.mu.RUnlock()

	desc := order == pagination.OrderDesc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		ka, kb := ruleSortKey(a, sortCol), ruleSortKey(b, sortCol)
		if ka != kb {
			if desc {
				return ka > kb
			}
			return ka < kb
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	if cursor != nil {
		curID, err := cursor.IntID()
		if err != nil {
			return nil, err
		}
		curSV, err := cursor.SortValueString()
		if err != nil {
			return nil, err
		}

		out := rows[:0:0]
		for _, r := range rows {
			if ruleAfterCursor(r, sortCol, curID, curSV, desc) {
				out = append(out, r)
			}
		}
		rows = out
	}

	if len(rows) > limit+1 {
		rows = rows[:limit+1]
	}
	return rows, nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.rules {
		if f.Status == "" || r.Status == f.Status {
			n++
		}
	}
	return n, nil
}

func ruleSortKey(r *Rule, sortCol string) string {
	switch sortCol {
	case "id":
		return ""
	default:
		return r.CreatedAt.UTC().Format(cursorTimeLayout)
	}
}

func ruleAfterCursor(r *Rule, sortCol string, curID int64, curSV string, desc bool) bool {
	if sortCol != "id" && curSV != "" {
		sv := ruleSortKey(r, sortCol)
		if sv != curSV {
			if desc {
				return sv < curSV
			}
			return sv > curSV
		}
	}
	if desc {
		return r.ID < curID
	}
	return r.ID > curID
}
