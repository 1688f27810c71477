package events

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
	byID   map[string]*Event
	events []*Event
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Event)}
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}
	cp := *e
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	s.byID[cp.ID] = &cp
	s.events = append(s.events, &cp)
	return nil
}

// List implements Store with the same compound-key seek semantics the SQL
// planner produces.
func (s *MemoryStore) List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		if matchesFilter(e, f) {
			rows = append(rows, e)
		}
	}
	s.mu.RUnlock()

	desc := order == pagination.OrderDesc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		ka, kb := eventSortKey(a, sortCol), eventSortKey(b, sortCol)
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
		filtered, err := seekEvents(rows, cursor, sortCol, desc)
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if matchesFilter(e, f) {
			n++
		}
	}
	return n, nil
}

// TopRules implements Store.
func (s *MemoryStore) TopRules(ctx context.Context, since time.Time, limit int) ([]RuleCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	agg := make(map[string]*RuleCount)
	for _, e := range s.events {
		if e.TS.Before(since) {
			continue
		}
		rc, ok := agg[e.RuleID]
		if !ok {
			rc = &RuleCount{RuleID: e.RuleID, RuleName: e.RuleName}
			agg[e.RuleID] = rc
		}
		rc.Count++
		if e.TS.After(rc.LastSeen) {
			rc.LastSeen = e.TS
		}
	}
	s.mu.RUnlock()

	out := make([]RuleCount, 0, len(agg))
	for _, rc := range agg {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(e *Event, f Filter) bool {
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.RuleID != "" && e.RuleID != f.RuleID {
		return false
	}
	if !f.DateFrom.IsZero() && e.TS.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && e.TS.After(f.DateTo) {
		return false
	}
	return true
}

func eventSortKey(e *Event, sortCol string) string {
	switch sortCol {
	case "id":
		return ""
	case "created_at":
		return e.CreatedAt.UTC().Format(cursorTimeLayout)
	default:
		return e.TS.UTC().Format(cursorTimeLayout)
	}
}

func seekEvents(rows []*Event, cursor *pagination.Cursor, sortCol string, desc bool) ([]*Event, error) {
	curID, err := cursor.StringID()
	if err != nil {
		return nil, err
	}
	curSV, err := cursor.SortValueString()
	if err != nil {
		return nil, err
	}

	after := func(e *Event) bool {
		if sortCol != "id" && curSV != "" {
			sv := eventSortKey(e, sortCol)
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
