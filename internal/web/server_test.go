package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/logging"
	"github.com/JonMunkholm/groupsub/internal/operator"
)

// do sends an authenticated JSON request through the router.
func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.10:5555"
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Accept", "application/json")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthzDatabaseDown(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.server.deps.DB = fakePinger{err: errors.New("connection refused")}

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.packages.On("GetPackages", mockCtx, "").Return([]operator.PackageDetail{}, nil)

	env.do(http.MethodGet, "/acp/packages", "")

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "groupsub_http_requests_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		env.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/acp/packages", "200")))
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, path := range []string{"/acp/packages", "/acp/subscriptions", "/acp/audit", "/api/terms/1"} {
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableCSP = true
	env := newTestEnv(t, cfg)

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.Security.CORSAllowedOrigins = []string{"https://forum.example.com"}
	env := newTestEnv(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/acp/packages", nil)
	req.Header.Set("Origin", "https://forum.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://forum.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = configRate(60, 2)
	env := newTestEnv(t, cfg)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.5:1000"
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{operator.ErrPackageNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", operator.ErrSubscriptionNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: 4", errTermNotFound), http.StatusNotFound},
		{&entity.OutOfBoundsError{Field: "length"}, http.StatusBadRequest},
		{fmt.Errorf("term 0: %w", &entity.UnexpectedValueError{Field: "currency"}), http.StatusBadRequest},
		{errInvalidID, http.StatusBadRequest},
		{fmt.Errorf("%w: 11", errUnknownGroup), http.StatusBadRequest},
		{fmt.Errorf("insert package: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict},
		{errRateLimited, http.StatusTooManyRequests},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "statusFor(%v)", tt.err)
	}
}

func TestErrorResponseFormats(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.packages.On("GetPackage", mockCtx, 42).Return(nil, operator.ErrPackageNotFound)

	rec := env.do(http.MethodGet, "/acp/packages/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"PKG001"`)

	req := httptest.NewRequest(http.MethodGet, "/acp/packages/42", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Code: PKG001")
}

func TestInvalidID(t *testing.T) {
	env := newTestEnv(t, testConfig())

	for _, path := range []string{"/acp/packages/abc", "/acp/packages/0", "/acp/subscriptions/-3", "/api/terms/x"} {
		rec := env.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "VAL005", path)
	}
}

func TestRespondErrorLogsTechnicalError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	env := newTestEnv(t, testConfig())
	env.packages.On("GetPackageTerm", mockCtx, 4).Return(nil, false, nil)

	rec := env.do(http.MethodGet, "/api/terms/4", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var rejected, request map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		switch entry["msg"] {
		case "request rejected":
			rejected = entry
		case "request":
			request = entry
		}
	}
	require.NotNil(t, rejected)
	assert.Equal(t, "PKG002", rejected["code"])
	assert.Equal(t, "term not found: 4", rejected["error"])
	assert.Equal(t, "api-key-1", rejected["actor"])

	require.NotNil(t, request)
	assert.Equal(t, "api-key-1", request["actor"])
}
