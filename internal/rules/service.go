package rules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/audit"
	"github.com/audit-engine/go-core/internal/pagination"
)

const (
	// DefaultPageSize and MaxPageSize bound rule listings.
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Actor identifies the principal performing a rule mutation, carried into
// the audit ledger.
type Actor struct {
	ID   int64
	Name string
}

// Page is one page of rules with cursor metadata.
type Page struct {
	Rules      []*Rule `json:"data"`
	NextCursor string  `json:"nextCursor,omitempty"`
	HasMore    bool    `json:"hasMore"`
	TotalCount int64   `json:"totalCount"`
}

// Service manages rule lifecycle and records every successful mutation in
// the audit ledger (fire-and-forget: audit failures never fail the
// mutation).
type Service struct {
	store  Store
	ledger *audit.Ledger
	logger *zap.Logger
}

// NewService creates the rule service.
func NewService(store Store, ledger *audit.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, ledger: ledger, logger: logger}
}

// Create drafts a new rule.
func (s *Service) Create(ctx context.Context, actor Actor, r *Rule) (*Rule, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.Pattern == "" {
		return nil, fmt.Errorf("%w: pattern is required", ErrInvalidRule)
	}

	r.Status = StatusDraft
	r.CreatedBy = actor.ID
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	target := r.Target()
	s.ledger.Record(ctx, actor.ID, actor.Name, audit.ActionDraftRule, &target, map[string]interface{}{
		"name":     r.Name,
		"severity": r.Severity,
	})
	return r, nil
}

// Approve moves a draft rule to active.
func (s *Service) Approve(ctx context.Context, actor Actor, id int64) (*Rule, error) {
	return s.transition(ctx, actor, id, StatusActive, audit.ActionApproveRule)
}

// Pause moves an active rule to paused.
func (s *Service) Pause(ctx context.Context, actor Actor, id int64) (*Rule, error) {
	return s.transition(ctx, actor, id, StatusPaused, audit.ActionPauseRule)
}

// Resume moves a paused rule back to active.
func (s *Service) Resume(ctx context.Context, actor Actor, id int64) (*Rule, error) {
	return s.transition(ctx, actor, id, StatusActive, audit.ActionResumeRule)
}

func (s *Service) transition(ctx context.Context, actor Actor, id int64, to Status, action audit.Action) (*Rule, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		return nil, &InvalidTransitionError{From: current.Status, To: to}
	}

	updated, err := s.store.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}

	target := updated.Target()
	s.ledger.Record(ctx, actor.ID, actor.Name, action, &target, map[string]interface{}{
		"from": string(current.Status),
		"to":   string(to),
	})
	return updated, nil
}

// Update edits a rule's definition (not its status).
func (s *Service) Update(ctx context.Context, actor Actor, r *Rule) (*Rule, error) {
	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}

	target := r.Target()
	s.ledger.Record(ctx, actor.ID, actor.Name, audit.ActionUpdateRule, &target, map[string]interface{}{
		"name": r.Name,
	})
	return r, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	target := r.Target()
	s.ledger.Record(ctx, actor.ID, actor.Name, audit.ActionDeleteRule, &target, map[string]interface{}{
		"name": r.Name,
	})
	return nil
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, id int64) (*Rule, error) {
	return s.store.Get(ctx, id)
}

// List returns one page of rules.
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

	sortCol := "created_at"
	if sortBy == "id" {
		sortCol = "id"
	}
	order := pagination.ParseOrder(sortOrder)

	rows, err := s.store.List(ctx, f, cursor, sortCol, order, limit)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	var svf func(*Rule) interface{}
	if sortCol != "id" {
		svf = func(r *Rule) interface{} { return r.CreatedAt.UTC().Format(cursorTimeLayout) }
	}
	page, next, hasMore := pagination.Consume(rows, limit,
		func(r *Rule) interface{} { return r.ID }, svf)

	total, err := s.store.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count rules: %w", err)
	}

	if page == nil {
		page = []*Rule{}
	}
	return &Page{Rules: page, NextCursor: next, HasMore: hasMore, TotalCount: total}, nil
}
