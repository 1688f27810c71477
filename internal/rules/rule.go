// Package rules manages detection rules and their approval lifecycle.
// Every successful mutation is recorded in the audit ledger.
package rules

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a rule id does not exist.
	ErrNotFound = errors.New("rule not found")

	// ErrInvalidRule wraps definition validation failures so callers can
	// map them to client errors without inspecting messages.
	ErrInvalidRule = errors.New("invalid rule")
)

// Status is a rule's lifecycle state. New rules start as drafts, are
// approved into active, and can be paused and resumed thereafter.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// InvalidTransitionError reports a rejected lifecycle transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid rule transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusDraft && to == StatusActive:
		return true
	case from == StatusActive && to == StatusPaused:
		return true
	case from == StatusPaused && to == StatusActive:
		return true
	}
	return false
}

// Rule is one detection rule.
type Rule struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Pattern     string    `db:"pattern" json:"pattern"`
	Severity    string    `db:"severity" json:"severity"`
	Status      Status    `db:"status" json:"status"`
	CreatedBy   int64     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Target renders the audit-ledger target identifier for this rule.
func (r *Rule) Target() string {
	return fmt.Sprintf("rule_%d", r.ID)
}
