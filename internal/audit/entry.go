// Package audit implements the hash-chained, append-only audit ledger.
//
// Every privileged administrative action is recorded as one Entry whose
// hash commits to the previous entry's hash, so any out-of-band insertion,
// deletion, or in-place edit is detectable by a full-chain verification.
package audit

import "time"

// Action is the enumerated operation tag recorded for a privileged action.
type Action string

const (
	ActionLogin       Action = "LOGIN"
	ActionLogout      Action = "LOGOUT"
	ActionLoginFailed Action = "LOGIN_FAILED"
	ActionDraftRule   Action = "DRAFT_RULE"
	ActionApproveRule Action = "APPROVE_RULE"
	ActionPauseRule   Action = "PAUSE_RULE"
	ActionResumeRule  Action = "RESUME_RULE"
	ActionUpdateRule  Action = "UPDATE_RULE"
	ActionDeleteRule  Action = "DELETE_RULE"
)

// ValidActions returns every recognized action tag.
func ValidActions() []Action {
	return []Action{
		ActionLogin,
		ActionLogout,
		ActionLoginFailed,
		ActionDraftRule,
		ActionApproveRule,
		ActionPauseRule,
		ActionResumeRule,
		ActionUpdateRule,
		ActionDeleteRule,
	}
}

// IsValidAction reports whether the tag is one of the recognized actions.
func IsValidAction(a Action) bool {
	for _, v := range ValidActions() {
		if a == v {
			return true
		}
	}
	return false
}

// Entry is one link of the audit chain. Entries are immutable once
// appended: the ledger exposes no update or delete operation, so any
// mutation the verifier catches necessarily happened out-of-band.
type Entry struct {
	// ID is assigned by the store at append time and is the canonical
	// chain ordering key: strictly monotonic, gap-free.
	ID        int64  `db:"id" json:"id"`
	ActorID   int64  `db:"actor_id" json:"actor_id"`
	ActorName string `db:"actor_name" json:"actor_name"`
	Action    Action `db:"action" json:"action"`

	// Target identifies the object acted upon (e.g. "rule_42"); nil when
	// the action has no target.
	Target *string `db:"target" json:"target,omitempty"`

	// Metadata is contextual detail (IP, reason, prior state). It is not
	// part of the hash input, so an in-place metadata edit is not
	// detectable by verification. Known gap, kept for compatibility with
	// the documented digest formula.
	Metadata map[string]interface{} `db:"metadata" json:"metadata,omitempty"`

	// Timestamp is assigned once at append and participates in the hash.
	Timestamp time.Time `db:"timestamp" json:"timestamp"`

	Hash         string  `db:"hash" json:"hash"`
	PreviousHash *string `db:"previous_hash" json:"previous_hash,omitempty"`

	// CreatedAt is the storage insertion time, kept for debugging only;
	// chaining and verification never consult it.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
