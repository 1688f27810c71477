package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/audit-engine/go-core/internal/pagination"
)

// MemoryStore is an in-memory Store used by tests and local development.
// A single mutex serializes Append, which is the whole point: the
// read-tail/insert sequence must be atomic per ledger.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
	nextID  int64
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, build func(tailHash *string) (*Entry, error)) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var tail *string
	if n := len(s.entries); n > 0 {
		h := s.entries[n-1].Hash
		tail = &h
	}

	entry, err := build(tail)
	if err != nil {
		return nil, err
	}
	entry.ID = s.nextID
	entry.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	s.nextID++
	s.entries = append(s.entries, entry)
	return entry, nil
}

// Walk implements Store. It iterates over a snapshot taken at call time.
func (s *MemoryStore) Walk(ctx context.Context, batchSize int, fn func(*Entry) error) error {
	s.mu.Lock()
	snapshot := make([]*Entry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// List implements Store with the same compound-key seek semantics the SQL
// planner produces.
func (s *MemoryStore) List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	rows := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchesFilter(e, f) {
			rows = append(rows, e)
		}
	}
	s.mu.Unlock()

	desc := order == pagination.OrderDesc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if sv := entrySortKey(a, sortCol); sv != entrySortKey(b, sortCol) {
			if desc {
				return sv > entrySortKey(b, sortCol)
			}
			return sv < entrySortKey(b, sortCol)
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	if cursor != nil {
		filtered, err := seekEntries(rows, cursor, sortCol, desc)
		if err != nil {
			return nil, err
		}
		rows = filtered
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

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.entries {
		if matchesFilter(e, f) {
			n++
		}
	}
	return n, nil
}

func matchesFilter(e *Entry, f Filter) bool {
	if f.ActorName != "" && e.ActorName != f.ActorName {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.DateFrom.IsZero() && e.Timestamp.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && e.Timestamp.After(f.DateTo) {
		return false
	}
	return true
}

// entrySortKey renders the sort column as a lexically ordered string; the
// fixed-width UTC time layout sorts the same way the timestamps do.
func entrySortKey(e *Entry, sortCol string) string {
	switch sortCol {
	case "id":
		return ""
	case "created_at":
		return e.CreatedAt.UTC().Format(hashTimeLayout)
	default:
		return e.Timestamp.UTC().Format(hashTimeLayout)
	}
}

// seekEntries applies the compound seek predicate to the sorted rows.
func seekEntries(rows []*Entry, cursor *pagination.Cursor, sortCol string, desc bool) ([]*Entry, error) {
	curID, err := cursor.IntID()
	if err != nil {
		return nil, err
	}
	curSV, err := cursor.SortValueString()
	if err != nil {
		return nil, err
	}

	after := func(e *Entry) bool {
		if sortCol != "id" && curSV != "" {
			sv := entrySortKey(e, sortCol)
			if sv != curSV {
				if desc {
					return sv < curSV
				}
				return sv > curSV
			}
		}
		if desc {
			return e.ID < curID
		}
		return e.ID > curID
	}

	out := rows[:0:0]
	for _, e := range rows {
		if after(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
