package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/audit"
	"github.com/audit-engine/go-core/internal/auth"
	"github.com/audit-engine/go-core/internal/events"
	"github.com/audit-engine/go-core/internal/rules"
)

type testEnv struct {
	server *Server
	ledger *audit.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := auth.NewMemoryUserStore()
	for _, u := range []struct {
		name string
		role auth.Role
	}{
		{"admin", auth.RoleAdmin},
		{"analyst", auth.RoleAnalyst},
		{"viewer", auth.RoleViewer},
	} {
		hash, err := auth.HashPassword(u.name + "-pass")
		require.NoError(t, err)
		users.AddUser(u.name, hash, u.role)
	}

	logger := zap.NewNop()
	ledger := audit.NewLedger(audit.NewMemoryStore(), logger, nil)

	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	authService := auth.NewService(users, issuer, ledger, logger)
	eventService := events.NewService(events.NewMemoryStore(), nil, nil, logger, nil)
	ruleService := rules.NewService(rules.NewMemoryStore(), ledger, logger)

	server, err := New(DefaultConfig(), authService, eventService, ruleService, ledger, nil, nil, logger)
	require.NoError(t, err)

	return &testEnv{server: server, ledger: ledger}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, username string) string {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", LoginRequest{
		Username: username,
		Password: username + "-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Token
}

func testEventBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"ts":         time.Now().UTC().Format(time.RFC3339),
		"source_ip":  "203.0.113.45",
		"path":       "/api/login",
		"method":     "POST",
		"service":    "auth-service",
		"rule_id":    "CADE-00124",
		"rule_name":  "Brute Force Login",
		"severity":   "high",
		"action":     "blocked",
		"latency_ms": 120,
		"country":    "SG",
		"env":        "prod",
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", LoginRequest{
		Username: "admin",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/events", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleEnforcement(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.login(t, "viewer")
	analyst := env.login(t, "analyst")

	// Viewers may read but not mutate.
	rec := env.do(t, http.MethodGet, "/v1/rules", viewer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/rules", viewer, RuleRequest{Name: "r", Pattern: "p"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Analysts may draft rules but not approve them.
	rec = env.do(t, http.MethodPost, "/v1/rules", analyst, RuleRequest{Name: "r", Pattern: "p", Severity: "high"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/rules/1/approve", analyst, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Audit endpoints are admin-only.
	rec = env.do(t, http.MethodGet, "/v1/audit", analyst, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventIngestAndConflict(t *testing.T) {
	env := newTestEnv(t)
	analyst := env.login(t, "analyst")

	rec := env.do(t, http.MethodPost, "/v1/events", analyst, testEventBody("evt_1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/events", analyst, testEventBody("evt_1"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	bad := testEventBody("evt_2")
	bad["severity"] = "catastrophic"
	rec = env.do(t, http.MethodPost, "/v1/events", analyst, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventListPagination(t *testing.T) {
	env := newTestEnv(t)
	analyst := env.login(t, "analyst")

	for i := 0; i < 15; i++ {
		rec := env.do(t, http.MethodPost, "/v1/events", analyst, testEventBody(fmt.Sprintf("evt_%03d", i)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/v1/events?limit=10", analyst, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page events.Page
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Events, 10)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(15), page.TotalCount)
	require.NotEmpty(t, page.NextCursor)

	rec = env.do(t, http.MethodGet, "/v1/events?limit=10&cursor="+page.NextCursor, analyst, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rest events.Page
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rest))
	assert.Len(t, rest.Events, 5)
	assert.False(t, rest.HasMore)
}

func TestMalformedCursorIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin")

	rec := env.do(t, http.MethodGet, "/v1/events?cursor=%25%25garbage", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/audit?cursor=%25%25garbage", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuleLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin")

	rec := env.do(t, http.MethodPost, "/v1/rules", admin, RuleRequest{
		Name: "SQL Injection Attempt", Pattern: "union.*select", Severity: "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created rules.Rule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, rules.StatusDraft, created.Status)

	// draft -> paused is rejected as a conflict.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/rules/%d/pause", created.ID), admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/rules/%d/approve", created.ID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var approved rules.Rule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&approved))
	assert.Equal(t, rules.StatusActive, approved.Status)

	rec = env.do(t, http.MethodGet, "/v1/rules/999", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditListAndVerify(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin")

	// The login above already produced a LOGIN ledger entry.
	rec := env.do(t, http.MethodGet, "/v1/audit", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page audit.Page
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.NotEmpty(t, page.Entries)
	assert.Equal(t, audit.ActionLogin, page.Entries[0].Action)

	rec = env.do(t, http.MethodGet, "/v1/audit/verify", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result audit.VerificationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Valid)
}

func TestLogoutRecordsAuditEntry(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	page := env.do(t, http.MethodGet, "/v1/audit?sortBy=id&sortOrder=desc", env.login(t, "admin"), nil)
	require.Equal(t, http.StatusOK, page.Code)

	var audits audit.Page
	require.NoError(t, json.NewDecoder(page.Body).Decode(&audits))
	actions := make([]audit.Action, 0, len(audits.Entries))
	for _, e := range audits.Entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionLogout)
}
