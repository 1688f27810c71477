package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/metrics"
	"github.com/audit-engine/go-core/internal/pagination"
)

const (
	// verifyBatchSize bounds memory during a full-chain walk.
	verifyBatchSize = 500

	// DefaultPageSize and MaxPageSize bound audit listings.
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// errStopWalk terminates a Walk early once verification has its verdict.
var errStopWalk = errors.New("stop walk")

// VerificationReason distinguishes a linkage break (a row is missing or
// reordered) from content tampering (a row was edited in place).
type VerificationReason string

const (
	ReasonChainBroken VerificationReason = "chain_broken"
	ReasonTampered    VerificationReason = "tampered"
)

// VerificationResult is the outcome of a full-chain verification.
// Integrity findings are a normal return value, never an error: only
// infrastructure failures surface as errors from Verify.
type VerificationResult struct {
	Valid      bool               `json:"valid"`
	BrokenAtID int64              `json:"broken_at_id,omitempty"`
	Reason     VerificationReason `json:"reason,omitempty"`
	Message    string             `json:"message"`
}

// Page is one page of audit entries with cursor metadata.
type Page struct {
	Entries    []*Entry `json:"data"`
	NextCursor string   `json:"nextCursor,omitempty"`
	HasMore    bool     `json:"hasMore"`
	TotalCount int64    `json:"totalCount"`
}

// Ledger is the append-only audit log. It consults the hash chain on every
// append and can re-verify the whole chain from genesis on demand.
type Ledger struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewLedger creates a ledger over the given store. metrics may be nil.
func NewLedger(store Store, logger *zap.Logger, m *metrics.Collector) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger, metrics: m, now: time.Now}
}

// Append creates the next chain entry. The previous hash is always derived
// from the store's current tail inside the store's append critical
// section, never from process-local state, so restarts and multiple
// instances cannot diverge the chain.
func (l *Ledger) Append(ctx context.Context, actorID int64, actorName string, action Action, target *string, metadata map[string]interface{}) (*Entry, error) {
	entry, err := l.store.Append(ctx, func(tailHash *string) (*Entry, error) {
		// Millisecond truncation keeps the persisted timestamp identical
		// to its serialized form in both the hash input and cursor sort
		// values; a finer stored value would fall between seek bounds.
		ts := l.now().UTC().Truncate(time.Millisecond)
		return &Entry{
			ActorID:      actorID,
			ActorName:    actorName,
			Action:       action,
			Target:       target,
			Metadata:     metadata,
			Timestamp:    ts,
			Hash:         ComputeEntryHash(actorName, action, target, ts, tailHash),
			PreviousHash: tailHash,
		}, nil
	})
	if err != nil {
		l.countAppend("error")
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	l.countAppend("ok")
	return entry, nil
}

// Record is the fire-and-forget form used by business workflows: a failed
// append is logged with full context and counted, never re-raised, so
// audit durability cannot fail the triggering action. The append is always
// attempted; failures are observable, not silently dropped.
func (l *Ledger) Record(ctx context.Context, actorID int64, actorName string, action Action, target *string, metadata map[string]interface{}) {
	if _, err := l.Append(ctx, actorID, actorName, action, target, metadata); err != nil {
		l.logger.Error("audit append failed",
			zap.Int64("actor_id", actorID),
			zap.String("actor", actorName),
			zap.String("action", string(action)),
			zap.Stringp("target", target),
			zap.Error(err),
		)
	}
}

// Verify re-walks the chain from genesis in ascending id batches, checking
// linkage first and then the recomputed content hash of every entry.
//
// The walk orders strictly by id, never by timestamp: a timestamp on a
// compromised row is attacker-controllable metadata, while id reflects
// storage-assigned insertion order. A verify racing a concurrent append
// may simply not see the new tail yet; it never blocks appends.
func (l *Ledger) Verify(ctx context.Context) (*VerificationResult, error) {
	var (
		prevHash *string
		count    int64
		verdict  *VerificationResult
	)

	err := l.store.Walk(ctx, verifyBatchSize, func(e *Entry) error {
		count++
		if !sameHash(e.PreviousHash, prevHash) {
			verdict = &VerificationResult{
				Valid:      false,
				BrokenAtID: e.ID,
				Reason:     ReasonChainBroken,
				Message:    fmt.Sprintf("chain broken at entry %d: previous_hash mismatch", e.ID),
			}
			return errStopWalk
		}
		if ComputeEntryHash(e.ActorName, e.Action, e.Target, e.Timestamp, prevHash) != e.Hash {
			verdict = &VerificationResult{
				Valid:      false,
				BrokenAtID: e.ID,
				Reason:     ReasonTampered,
				Message:    fmt.Sprintf("tampering detected at entry %d: hash mismatch", e.ID),
			}
			return errStopWalk
		}
		h := e.Hash
		prevHash = &h
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		l.countVerify("error")
		return nil, fmt.Errorf("verify audit chain: %w", err)
	}

	if verdict != nil {
		l.countVerify(string(verdict.Reason))
		return verdict, nil
	}

	msg := fmt.Sprintf("audit chain verified: %d entries intact", count)
	if count == 0 {
		msg = "no audit entries to verify"
	}
	l.countVerify("valid")
	return &VerificationResult{Valid: true, Message: msg}, nil
}

// List returns one page of entries. A malformed cursor token fails with
// pagination.ErrMalformedCursor; an absent token means the first page.
func (l *Ledger) List(ctx context.Context, f Filter, cursorToken string, limit int, sortBy, sortOrder string) (*Page, error) {
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

	rows, err := l.store.List(ctx, f, cursor, sortCol, order, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	page, next, hasMore := pagination.Consume(rows, limit,
		func(e *Entry) interface{} { return e.ID },
		sortValueFunc(sortCol),
	)

	total, err := l.store.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count audit entries: %w", err)
	}

	if page == nil {
		page = []*Entry{}
	}
	return &Page{Entries: page, NextCursor: next, HasMore: hasMore, TotalCount: total}, nil
}

// sortColumn maps client-supplied sort fields onto the trusted column
// allow-list, defaulting to timestamp.
func sortColumn(sortBy string) string {
	switch sortBy {
	case "id":
		return "id"
	case "createdAt", "created_at":
		return "created_at"
	default:
		return "timestamp"
	}
}

// sortValueFunc extracts the cursor sort value for the chosen column. Time
// values are encoded in the same fixed layout used everywhere so cursors
// stay stable across restarts.
func sortValueFunc(sortCol string) func(*Entry) interface{} {
	switch sortCol {
	case "id":
		return nil
	case "created_at":
		return func(e *Entry) interface{} { return e.CreatedAt.UTC().Format(hashTimeLayout) }
	default:
		return func(e *Entry) interface{} { return e.Timestamp.UTC().Format(hashTimeLayout) }
	}
}

func (l *Ledger) countAppend(status string) {
	if l.metrics != nil {
		l.metrics.LedgerAppends.WithLabelValues(status).Inc()
	}
}

func (l *Ledger) countVerify(result string) {
	if l.metrics != nil {
		l.metrics.VerifyRuns.WithLabelValues(result).Inc()
	}
}
