package events

import (
	"context"
	"time"

	"github.com/audit-engine/go-core/internal/pagination"
)

// Filter narrows event listings and counts.
type Filter struct {
	Severity Severity
	RuleID   string
	DateFrom time.Time
	DateTo   time.Time
}

// Store is the persistence contract for the event stream.
type Store interface {
	// Insert persists one event. Returns ErrDuplicateEvent when the id
	// already exists.
	Insert(ctx context.Context, e *Event) error

	// List returns up to the plan's over-fetch limit of events matching
	// the filter, positioned and ordered by the cursor plan.
	List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, f Filter) (int64, error)

	// TopRules aggregates event volume per rule since the given instant,
	// highest volume first. Used as the fallback when the Redis counters
	// are unavailable.
	TopRules(ctx context.Context, since time.Time, limit int) ([]RuleCount, error)
}
