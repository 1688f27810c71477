package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/audit"
)

func newAuthService(t *testing.T) (*Service, *MemoryUserStore, *audit.Ledger) {
	t.Helper()

	users := NewMemoryUserStore()
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	users.AddUser("admin", hash, RoleAdmin)

	ledger := audit.NewLedger(audit.NewMemoryStore(), zap.NewNop(), nil)
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	return NewService(users, issuer, ledger, zap.NewNop()), users, ledger
}

func auditEntries(t *testing.T, ledger *audit.Ledger) []*audit.Entry {
	t.Helper()
	page, err := ledger.List(context.Background(), audit.Filter{}, "", 100, "id", "asc")
	require.NoError(t, err)
	return page.Entries
}

func TestLoginSuccess(t *testing.T) {
	svc, _, ledger := newAuthService(t)

	token, user, err := svc.Login(context.Background(), "admin", "correct-horse", map[string]interface{}{"ip": "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "admin", user.Username)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	entries := auditEntries(t, ledger)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionLogin, entries[0].Action)
	assert.Equal(t, "admin", entries[0].ActorName)
	assert.Equal(t, "10.0.0.1", entries[0].Metadata["ip"])
}

func TestLoginWrongPasswordAudited(t *testing.T) {
	svc, _, ledger := newAuthService(t)

	_, _, err := svc.Login(context.Background(), "admin", "wrong", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	entries := auditEntries(t, ledger)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionLoginFailed, entries[0].Action)
}

// Unknown usernames yield the same error as wrong passwords but leave no
// ledger entry: there is no actor to attribute one to.
func TestLoginUnknownUser(t *testing.T) {
	svc, _, ledger := newAuthService(t)

	_, _, err := svc.Login(context.Background(), "nobody", "whatever", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, auditEntries(t, ledger))
}

func TestLogoutAudited(t *testing.T) {
	svc, _, ledger := newAuthService(t)
	ctx := context.Background()

	token, _, err := svc.Login(ctx, "admin", "correct-horse", nil)
	require.NoError(t, err)
	claims, err := svc.Validate(token)
	require.NoError(t, err)

	svc.Logout(ctx, claims, nil)

	entries := auditEntries(t, ledger)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionLogout, entries[1].Action)
	assert.Equal(t, "admin", entries[1].ActorName)
}
