// Package events stores and serves the security-event stream ingested
// from upstream sensors. Events are append-only with sensor-assigned ids;
// there is no chaining, only cursor pagination.
package events

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateEvent is returned when an ingested event's id already
	// exists. Reported as a conflict rather than swallowed so upstream
	// sensors can detect retransmission bugs.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrInvalidEvent wraps every Validate failure so callers can map
	// payload problems to client errors without inspecting messages.
	ErrInvalidEvent = errors.New("invalid event")
)

// Severity classifies an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Disposition is what the upstream sensor did with the request.
type Disposition string

const (
	DispositionAllowed Disposition = "allowed"
	DispositionBlocked Disposition = "blocked"
)

// Event is one security event as supplied by a sensor. The id is
// sensor-assigned, not auto-incremented.
type Event struct {
	ID        string      `db:"id" json:"id"`
	TS        time.Time   `db:"ts" json:"ts"`
	SourceIP  string      `db:"source_ip" json:"source_ip"`
	Path      string      `db:"path" json:"path"`
	Method    string      `db:"method" json:"method"`
	Service   string      `db:"service" json:"service"`
	RuleID    string      `db:"rule_id" json:"rule_id"`
	RuleName  string      `db:"rule_name" json:"rule_name"`
	Severity  Severity    `db:"severity" json:"severity"`
	Action    Disposition `db:"action" json:"action"`
	LatencyMs int         `db:"latency_ms" json:"latency_ms"`
	Country   string      `db:"country" json:"country"`
	Env       string      `db:"env" json:"env"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// Validate checks the fields a sensor must supply.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	if e.RuleID == "" {
		return fmt.Errorf("%w: rule_id is required", ErrInvalidEvent)
	}
	switch e.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	default:
		return fmt.Errorf("%w: severity %q", ErrInvalidEvent, e.Severity)
	}
	switch e.Action {
	case DispositionAllowed, DispositionBlocked:
	default:
		return fmt.Errorf("%w: action %q", ErrInvalidEvent, e.Action)
	}
	return nil
}

// RuleCount is an aggregate of event volume per rule, used by stats.
type RuleCount struct {
	RuleID   string    `json:"rule_id"`
	RuleName string    `json:"rule_name"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}
