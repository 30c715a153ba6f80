package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/core/services"
	"worklens/internal/infrastructure/middleware"
	"worklens/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	sourceS  = "s@example.com"
	sourceT  = "t@example.com"
	managerV = "v@example.com"
	adminA   = "admin@example.com"
)

type testEnv struct {
	router *gin.Engine
	auth   *services.AuthService
	relay  *services.RelayService
	audit  *services.AuditService
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := zap.NewNop().Sugar()

	hash, err := services.HashPassword("pa55word")
	require.NoError(t, err)

	dir := memory.NewMemoryDirectory()
	accounts := []*domain.Account{
		{SubjectID: managerV, Role: domain.RoleTeamViewer, PasswordHash: hash},
		{SubjectID: "v2@example.com", Role: domain.RoleTeamViewer},
		{SubjectID: adminA, Role: domain.RoleGlobalViewer},
		{SubjectID: sourceS, Role: domain.RoleSource, Manager: managerV},
		{SubjectID: sourceT, Role: domain.RoleSource, Manager: "v2@example.com"},
	}
	for _, acc := range accounts {
		require.NoError(t, dir.Put(ctx, acc))
	}

	metrics := services.NewMetricsService()
	authSvc := services.NewAuthService("secret", time.Hour, dir, log)
	team := services.NewTeamService(dir, log)
	audit := services.NewAuditService(memory.NewMemoryAuditRepository(), 10, time.Hour, metrics, log)
	t.Cleanup(audit.Close)
	relay := services.NewRelayService(team, audit, metrics, log)
	team.SetRemovalHooks(relay, nil, audit)
	work := services.NewWorkSessionService(memory.NewMemoryWorkSessionRepository(), memory.NewKeyedLocker(), team, relay, metrics, log)
	interval := services.NewIntervalService(memory.NewMemoryIntervalRepository(), team, relay, audit, []int{2, 3, 4, 5}, log)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))
	RegisterAPI(router, NewAuthHandler(authSvc), authSvc,
		NewWorkHandler(work),
		NewIntervalHandler(interval),
		NewLiveHandler(relay),
		NewAdminHandler(team, audit),
	)

	tokens := make(map[string]string)
	for _, acc := range accounts {
		token, err := authSvc.IssueToken(acc.Identity())
		require.NoError(t, err)
		tokens[string(acc.SubjectID)] = token
	}

	return &testEnv{router: router, auth: authSvc, relay: relay, audit: audit, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, as string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[as])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": managerV, "password": "pa55word"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "manager", body["role"])
	assert.EqualValues(t, 3600, body["expiresIn"])

	identity, err := env.auth.ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, domain.SubjectID(managerV), identity.SubjectID)

	w, body = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": managerV, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_INVALID", body["error"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": managerV, "password": strings.Repeat("x", 73)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/v1/work/start", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// role mismatch
	w, body := env.do(t, http.MethodPost, "/api/v1/work/start", managerV, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", body["error"])
}

func TestWorkLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/v1/work/start", sourceS, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	session := body["session"].(map[string]any)
	assert.Equal(t, true, session["isActive"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/work/start", sourceS, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/v1/work/heartbeat", sourceS, gin.H{"idleDeltaSeconds": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 30, body["idleSeconds"])

	w, body = env.do(t, http.MethodPost, "/api/v1/work/heartbeat", sourceS, gin.H{"idleDeltaSeconds": -10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 30, body["idleSeconds"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/work/stop", sourceS, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/v1/work/heartbeat", sourceS, gin.H{"idleDeltaSeconds": 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_ACTIVE_SESSION", body["error"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/work/stop", sourceS, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkReports(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/v1/work/start", sourceS, nil)
	env.do(t, http.MethodPost, "/api/v1/work/start", sourceT, nil)

	w, body := env.do(t, http.MethodGet, "/api/v1/work/summary/today", managerV, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, sourceS, sources[0].(map[string]any)["sourceId"])

	w, body = env.do(t, http.MethodGet, "/api/v1/work/sessions/today", adminA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["sources"].([]any), 2)

	w, _ = env.do(t, http.MethodGet, "/api/v1/work/summary/today?sourceId="+sourceT, managerV, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	w, body = env.do(t, http.MethodGet, "/api/v1/work/summary/range?from="+from+"&to="+to+"&sourceId="+sourceS, adminA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["sources"].([]any), 1)

	w, _ = env.do(t, http.MethodGet, "/api/v1/work/sessions/range?from=yesterday&to="+to, adminA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/work/summary/range?from="+to+"&to="+from, adminA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/work/summary/today?sourceId=live:viewers:x", adminA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCaptureInterval(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/v1/capture-interval", sourceS, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["assigned"])
	assert.Nil(t, body["intervalSeconds"])

	w, body = env.do(t, http.MethodPost, "/api/v1/capture-interval", managerV, gin.H{"sourceId": sourceS, "intervalMinutes": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 300, body["intervalSeconds"])

	w, body = env.do(t, http.MethodGet, "/api/v1/capture-interval", sourceS, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["assigned"])
	assert.EqualValues(t, 300, body["intervalSeconds"])

	w, body = env.do(t, http.MethodPost, "/api/v1/capture-interval", managerV, gin.H{"sourceId": sourceS, "intervalMinutes": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INTERVAL", body["error"])
	assert.Contains(t, body["message"], "intervalMinutes must be one of 2, 3, 4, 5")

	w, _ = env.do(t, http.MethodPost, "/api/v1/capture-interval", managerV, gin.H{"sourceId": sourceT, "intervalMinutes": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/capture-interval", sourceS, gin.H{"sourceId": sourceS, "intervalMinutes": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/capture-interval", managerV, gin.H{"intervalMinutes": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// a viewer without sourceId reads its own id
	w, body = env.do(t, http.MethodGet, "/api/v1/capture-interval", managerV, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["assigned"])

	// a source always reads its own value
	w, body = env.do(t, http.MethodGet, "/api/v1/capture-interval?sourceId="+sourceT, sourceS, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 300, body["intervalSeconds"])

	w, body = env.do(t, http.MethodPost, "/api/v1/capture-interval", managerV, gin.H{"sourceId": "live:viewers:x", "intervalMinutes": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["error"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/capture-interval?sourceId=bad%20id", managerV, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresenceAndLive(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/v1/presence/online", managerV, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["users"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/presence/online", sourceS, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/v1/live/status", sourceS, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["streaming"])

	w, body = env.do(t, http.MethodPost, "/api/v1/live/frames", sourceS, gin.H{"frameBytes": []byte("jpeg"), "ts": 1})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, body["relayed"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/live/frames", sourceS, gin.H{"ts": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/live/frames", managerV, gin.H{"frameBytes": []byte("jpeg")})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRemoveSourceAndAudit(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodDelete, "/api/v1/sources/live:viewers:x", adminA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/v1/sources/"+sourceT, managerV, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/v1/sources/"+sourceS, managerV, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/v1/sources/"+sourceS, adminA, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/audit-logs", managerV, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := env.do(t, http.MethodGet, "/api/v1/audit-logs?actor="+managerV, adminA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "source_removed", logs[0].(map[string]any)["type"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/audit-logs?limit=abc", adminA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
