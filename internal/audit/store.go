package audit

import (
	"context"
	"time"

	"github.com/audit-engine/go-core/internal/pagination"
)

// Filter narrows audit listings and counts.
type Filter struct {
	ActorName string
	Action    Action
	DateFrom  time.Time
	DateTo    time.Time
}

// Store is the persistence contract for the ledger.
//
// Append must execute build and the subsequent insert atomically with
// respect to other concurrent Append calls: two appends both reading the
// same tail would produce two entries with identical previous hashes and
// silently fork the chain into branches Verify cannot tell apart.
type Store interface {
	// Append runs the read-tail/compute/insert sequence inside the
	// store's append critical section. build receives the hash of the
	// current tail entry (nil for an empty ledger) and returns the entry
	// to persist; the store assigns ID and CreatedAt.
	Append(ctx context.Context, build func(tailHash *string) (*Entry, error)) (*Entry, error)

	// Walk streams all entries in ascending id order in batches of
	// batchSize, invoking fn for each. Entries appended after the walk
	// begins may legitimately not be observed.
	Walk(ctx context.Context, batchSize int, fn func(*Entry) error) error

	// List returns up to the plan's over-fetch limit of entries matching
	// the filter, positioned and ordered by the cursor plan.
	List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Entry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, f Filter) (int64, error)
}
