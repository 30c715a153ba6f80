package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"worklens/internal/core/domain"
	"worklens/pkg/config"
	"worklens/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubResolver map[string]domain.Identity

func (r stubResolver) ValidateToken(token string) (domain.Identity, error) {
	if id, ok := r[token]; ok {
		return id, nil
	}
	return domain.Anonymous, domain.ErrAuthInvalid
}

var resolver = stubResolver{
	"src":   {SubjectID: "s@example.com", Role: domain.RoleSource},
	"admin": {SubjectID: "a@example.com", Role: domain.RoleGlobalViewer},
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	authed := router.Group("/", AuthMiddleware(resolver))
	authed.GET("/whoami", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"subject": id.SubjectID})
	})
	authed.GET("/admin", RequireRoles(domain.RoleGlobalViewer), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func doRequest(router http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter()

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/whoami", "", http.StatusUnauthorized},
		{"wrong scheme", "/whoami", "Basic src", http.StatusUnauthorized},
		{"unknown token", "/whoami", "Bearer nope", http.StatusUnauthorized},
		{"valid", "/whoami", "Bearer src", http.StatusOK},
		{"lowercase scheme", "/whoami", "bearer src", http.StatusOK},
		{"role mismatch", "/admin", "Bearer src", http.StatusForbidden},
		{"role match", "/admin", "Bearer admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, tt.path, tt.header)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuthMiddleware_ErrorBody(t *testing.T) {
	w := doRequest(newAuthRouter(), "/whoami", "Bearer nope")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AUTH_INVALID", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{domain.ErrNoActiveSession, http.StatusNotFound, "NO_ACTIVE_SESSION"},
		{fmt.Errorf("%w: intervalMinutes must be one of 2, 3", domain.ErrInvalidInterval), http.StatusBadRequest, "INVALID_INTERVAL"},
		{fmt.Errorf("save: %w", domain.ErrStorageFailure), http.StatusInternalServerError, "STORAGE_FAILURE"},
		{domain.ErrAccountNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
			router.GET("/", func(c *gin.Context) { c.Error(tt.err) })

			w := doRequest(router, "/", "")
			assert.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestErrorHandler_InvalidIntervalMessage(t *testing.T) {
	appErr := FromDomain(fmt.Errorf("%w: intervalMinutes must be one of 2, 3, 4, 5", domain.ErrInvalidInterval))
	assert.Contains(t, appErr.Message, "intervalMinutes must be one of 2, 3, 4, 5")
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/", func(c *gin.Context) { panic("kaboom") })

	w := doRequest(router, "/", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRequestLoggerMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLoggerMiddleware(logger.NewContextLogger(zap.NewNop())))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestIDFrom(c.Request.Context()))
	})

	w := doRequest(router, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	w2 := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	router.ServeHTTP(w2, req)
	assert.Equal(t, "fixed-id", w2.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	cfg.Auth.AllowedOrigins = []string{"https://ui.example.com"}

	router := gin.New()
	router.Use(CORSMiddleware(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://ui.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
