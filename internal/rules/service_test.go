package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/audit"
)

var admin = Actor{ID: 1, Name: "admin"}

func newService(t *testing.T) (*Service, *audit.Ledger) {
	t.Helper()
	ledger := audit.NewLedger(audit.NewMemoryStore(), zap.NewNop(), nil)
	return NewService(NewMemoryStore(), ledger, zap.NewNop()), ledger
}

func draftRule(t *testing.T, svc *Service) *Rule {
	t.Helper()
	r, err := svc.Create(context.Background(), admin, &Rule{
		Name:     "SQL Injection Attempt",
		Pattern:  "union.*select",
		Severity: "high",
	})
	require.NoError(t, err)
	return r
}

func lastAuditEntry(t *testing.T, ledger *audit.Ledger) *audit.Entry {
	t.Helper()
	page, err := ledger.List(context.Background(), audit.Filter{}, "", 1, "id", "desc")
	require.NoError(t, err)
	require.NotEmpty(t, page.Entries)
	return page.Entries[0]
}

func TestCreateStartsAsDraft(t *testing.T) {
	svc, ledger := newService(t)

	r := draftRule(t, svc)
	assert.Equal(t, StatusDraft, r.Status)
	assert.Equal(t, int64(1), r.ID)

	entry := lastAuditEntry(t, ledger)
	assert.Equal(t, audit.ActionDraftRule, entry.Action)
	require.NotNil(t, entry.Target)
	assert.Equal(t, "rule_1", *entry.Target)
	assert.Equal(t, "admin", entry.ActorName)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, &Rule{Pattern: "x"})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = svc.Create(ctx, admin, &Rule{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestLifecycleTransitions(t *testing.T) {
	svc, ledger := newService(t)
	ctx := context.Background()
	r := draftRule(t, svc)

	approved, err := svc.Approve(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, approved.Status)
	assert.Equal(t, audit.ActionApproveRule, lastAuditEntry(t, ledger).Action)

	paused, err := svc.Pause(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, paused.Status)
	assert.Equal(t, audit.ActionPauseRule, lastAuditEntry(t, ledger).Action)

	resumed, err := svc.Resume(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, resumed.Status)
	assert.Equal(t, audit.ActionResumeRule, lastAuditEntry(t, ledger).Action)
}

func TestInvalidTransitions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r := draftRule(t, svc)

	// draft -> paused is not allowed.
	_, err := svc.Pause(ctx, admin, r.ID)
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, StatusDraft, transition.From)
	assert.Equal(t, StatusPaused, transition.To)

	// draft -> active -> active is not allowed either.
	_, err = svc.Approve(ctx, admin, r.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, r.ID)
	assert.ErrorAs(t, err, &transition)
}

/// A rejected transition must leave no audit trace: only successful
// mutations are recorded.
func TestInvalidTransitionNotAudited(t *testing.T) {
	svc, ledger := newService(t)
	ctx := context.Background()
	r := draftRule(t, svc)

	before := lastAuditEntry(t, ledger).ID
	_, err := svc.Pause(ctx, admin, r.ID)
	require.Error(t, err)

	assert.Equal(t, before, lastAuditEntry(t, ledger).ID)
}

func TestUpdateAndDeleteAudited(t *testing.T) {
	svc, ledger := newService(t)
	ctx := context.Background()
	r := draftRule(t, svc)

	r.Name = "SQLi (updated)"
	_, err := svc.Update(ctx, admin, r)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionUpdateRule, lastAuditEntry(t, ledger).Action)

	require.NoError(t, svc.Delete(ctx, admin, r.ID))
	entry := lastAuditEntry(t, ledger)
	assert.Equal(t, audit.ActionDeleteRule, entry.Action)
	require.NotNil(t, entry.Target)
	assert.Equal(t, "rule_1", *entry.Target)

	_, err = svc.Get(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknownRule(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r1 := draftRule(t, svc)
	draftRule(t, svc)
	_, err := svc.Approve(ctx, admin, r1.ID)
	require.NoError(t, err)

	page, err := svc.List(ctx, Filter{Status: StatusDraft}, "", 10, "", "")
	require.NoError(t, err)
	require.Len(t, page.Rules, 1)
	assert.Equal(t, int64(1), page.TotalCount)

	all, err := svc.List(ctx, Filter{}, "", 10, "", "")
	require.NoError(t, err)
	assert.Len(t, all.Rules, 2)
}
