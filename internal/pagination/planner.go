package pagination

import (
	"encoding/json"
	"fmt"
)

// Order is the sort direction for a listing.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder normalizes a client-supplied sort order, defaulting to
// descending (newest first).
func ParseOrder(s string) Order {
	if s == string(OrderAsc) {
		return OrderAsc
	}
	return OrderDesc
}

func (o Order) operator() string {
	if o == OrderAsc {
		return ">"
	}
	return "<"
}

func (o Order) direction() string {
	if o == OrderAsc {
		return "ASC"
	}
	return "DESC"
}

// Plan is the derived query fragment for a single page: a seek predicate
// with positional arguments, a total ordering clause, and an over-fetch
// limit.
type Plan struct {
	// Predicate is a SQL boolean expression, empty for the first page.
	Predicate string
	// Args are the bind values referenced by Predicate.
	Args []interface{}
	// OrderBy is the ordering clause body (without the ORDER BY keyword).
	OrderBy string
	// FetchLimit is limit+1: the extra row detects whether a further page
	// exists without a separate count query.
	FetchLimit int
	// NextArg is the next free positional placeholder index after Args.
	NextArg int
}

// Build derives the predicate and ordering that guarantee a stable,
// non-overlapping walk. Ordering is sortCol then idCol, both in the
// requested direction, which totals the order even when sortCol holds
// duplicate values. With a cursor present the predicate is the compound
// seek
//
//	(sortCol OP v) OR (sortCol = v AND idCol OP id)
//
// falling back to a plain idCol inequality when sorting by the key itself
// or when the cursor carries no sort value. A single-column inequality on
// sortCol alone would skip or repeat rows sharing the boundary value.
//
// sortCol and idCol must be trusted column names; callers map
// client-supplied sort fields onto a fixed allow-list before calling.
// argIndex is the first free $n placeholder, letting the fragment compose
// with filter predicates built by the caller.
func Build(c *Cursor, sortCol, idCol string, order Order, limit, argIndex int) Plan {
	p := Plan{FetchLimit: limit + 1, NextArg: argIndex}

	if sortCol == "" || sortCol == idCol {
		p.OrderBy = fmt.Sprintf("%s %s", idCol, order.direction())
	} else {
		p.OrderBy = fmt.Sprintf("%s %s, %s %s", sortCol, order.direction(), idCol, order.direction())
	}

	if c == nil {
		return p
	}

	op := order.operator()
	id := bindable(c.ID)

	if sortCol == "" || sortCol == idCol || c.SortValue == nil {
		p.Predicate = fmt.Sprintf("%s %s $%d", idCol, op, argIndex)
		p.Args = []interface{}{id}
		p.NextArg = argIndex + 1
		return p
	}

	sv := bindable(c.SortValue)
	p.Predicate = fmt.Sprintf("(%s %s $%d OR (%s = $%d AND %s %s $%d))",
		sortCol, op, argIndex, sortCol, argIndex+1, idCol, op, argIndex+2)
	p.Args = []interface{}{sv, sv, id}
	p.NextArg = argIndex + 3
	return p
}

// Consume splits an over-fetched result set into the page and the resume
// token for the next one. sortValueOf may be nil when sorting by the
// primary key.
func Consume[T any](rows []T, limit int, idOf func(T) interface{}, sortValueOf func(T) interface{}) (page []T, nextCursor string, hasMore bool) {
	hasMore = len(rows) > limit
	page = rows
	if hasMore {
		page = rows[:limit]
	}
	if hasMore && len(page) > 0 {
		last := page[len(page)-1]
		var sv interface{}
		if sortValueOf != nil {
			sv = sortValueOf(last)
		}
		nextCursor = Encode(idOf(last), sv)
	}
	return page, nextCursor, hasMore
}

// bindable converts decoded cursor values into types database drivers can
// bind directly.
func bindable(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
