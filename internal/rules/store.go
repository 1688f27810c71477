package rules

import (
	"context"

	"github.com/audit-engine/go-core/internal/pagination"
)

// Filter narrows rule listings.
type Filter struct {
	Status Status
}

// Store is the persistence contract for rules.
type Store interface {
	// Create persists a new rule and assigns ID, CreatedAt, UpdatedAt.
	Create(ctx context.Context, r *Rule) error

	// Get returns the rule or ErrNotFound.
	Get(ctx context.Context, id int64) (*Rule, error)

	// Update persists name/description/pattern/severity changes and bumps
	// UpdatedAt. Returns ErrNotFound when the id does not exist.
	Update(ctx context.Context, r *Rule) error

	// UpdateStatus moves the rule to the given status and bumps
	// UpdatedAt. Returns ErrNotFound when the id does not exist.
	UpdateStatus(ctx context.Context, id int64, status Status) (*Rule, error)

	// Delete removes the rule. Returns ErrNotFound when absent.
	Delete(ctx context.Context, id int64) error

	// List returns up to the plan's over-fetch limit of rules matching
	// the filter, positioned and ordered by the cursor plan.
	List(ctx context.Context, f Filter, cursor *pagination.Cursor, sortCol string, order pagination.Order, limit int) ([]*Rule, error)

	// Count returns the number of rules matching the filter.
	Count(ctx context.Context, f Filter) (int64, error)
}
