package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/metrics"
	"github.com/audit-engine/go-core/internal/pagination"
)

const (
	// DefaultPageSize and MaxPageSize bound event listings.
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// RuleCounter maintains rolling per-rule frequency counters. Implemented
// by the Redis-backed stats counter; increments are best-effort side
// effects of ingestion.
type RuleCounter interface {
	IncrementRule(ctx context.Context, ruleID, ruleName string) error
	TopRules(ctx context.Context, limit int) ([]RuleCount, error)
}

// Broadcaster fans ingested events out to live subscribers.
type Broadcaster interface {
	BroadcastEvent(e *Event)
}

// Page is one page of events with cursor metadata.
type Page struct {
	Events     []*Event `json:"data"`
	NextCursor string   `json:"nextCursor,omitempty"`
	HasMore    bool     `json:"hasMore"`
	TotalCount int64    `json:"totalCount"`
}

// Service ingests and serves the security-event stream.
type Service struct {
	store       Store
	counter     RuleCounter
	broadcaster Broadcaster
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// NewService creates the event service. counter, broadcaster, and m may be
// nil.
func NewService(store Store, counter RuleCounter, broadcaster Broadcaster, logger *zap.Logger, m *metrics.Collector) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		counter:     counter,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     m,
	}
}

// Ingest validates and persists one sensor event. A duplicate id surfaces
// as ErrDuplicateEvent. Counter increments and live fan-out are
// best-effort: their failure never fails the ingest.
func (s *Service) Ingest(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		s.countRejected("invalid")
		return err
	}

	// Stored at millisecond precision so the value round-trips exactly
	// through the fixed-layout cursor sort encoding.
	e.TS = e.TS.UTC().Truncate(time.Millisecond)

	if err := s.store.Insert(ctx, e); err != nil {
		s.countRejected("store")
		return err
	}

	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(string(e.Severity), string(e.Action)).Inc()
	}

	if s.counter != nil {
		if err := s.counter.IncrementRule(ctx, e.RuleID, e.RuleName); err != nil {
			s.logger.Warn("rule counter increment failed",
				zap.String("rule_id", e.RuleID),
				zap.Error(err),
			)
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(e)
	}
	return nil
}

// List returns one page of events. A malformed cursor token fails with
// pagination.ErrMalformedCursor; an absent token means the first page.
func (s *Service) List(ctx context.Context, f Filter, cursorToken string, limit int, sortBy, sortOrder string) (*Page, error) {
	var cursor *pagination.Cursor
	if cursorToken != "" {
		c, err := pagination.Decode(cursorToken)
		if err != nil {
			return nil, err
		}
		cursor = c
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	sortCol := sortColumn(sortBy)
	order := pagination.ParseOrder(sortOrder)

	rows, err := s.store.List(ctx, f, cursor, sortCol, order, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	page, next, hasMore := pagination.Consume(rows, limit,
		func(e *Event) interface{} { return e.ID },
		sortValueFunc(sortCol),
	)

	total, err := s.store.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	if page == nil {
		page = []*Event{}
	}
	return &Page{Events: page, NextCursor: next, HasMore: hasMore, TotalCount: total}, nil
}

// TopRules reports rule volume over the rolling window, preferring the
// Redis counters and falling back to a database aggregate when they are
// unavailable.
func (s *Service) TopRules(ctx context.Context, window time.Duration, limit int) ([]RuleCount, error) {
	if limit <= 0 {
		limit = 5
	}

	if s.counter != nil {
		top, err := s.counter.TopRules(ctx, limit)
		if err == nil {
			return top, nil
		}
		s.logger.Warn("redis rule stats unavailable, falling back to store aggregate", zap.Error(err))
	}
	return s.store.TopRules(ctx, time.Now().Add(-window), limit)
}

func (s *Service) countRejected(reason string) {
	if s.metrics != nil {
		s.metrics.EventsRejected.WithLabelValues(reason).Inc()
	}
}

func sortColumn(sortBy string) string {
	switch sortBy {
	case "id":
		return "id"
	case "createdAt", "created_at":
		return "created_at"
	default:
		return "ts"
	}
}

func sortValueFunc(sortCol string) func(*Event) interface{} {
	switch sortCol {
	case "id":
		return nil
	case "created_at":
		return func(e *Event) interface{} { return e.CreatedAt.UTC().Format(cursorTimeLayout) }
	default:
		return func(e *Event) interface{} { return e.TS.UTC().Format(cursorTimeLayout) }
	}
}
