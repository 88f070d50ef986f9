package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway/internal/acl"
	"gateway/internal/backend"
	"gateway/internal/config"
)

func newTestRouter(h *DispatchHandler) chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/", h.Dispatch)
	r.HandleFunc("/*", h.Dispatch)
	return r
}

// newTestPool builds a real, unconnected Pool: redis.NewClient never
// dials eagerly, so Lease (semaphore-only) works offline. Tests that
// never reach Lease.Do never touch the network.
func newTestPool(t *testing.T, capacity int) *backend.Pool {
	t.Helper()
	cfg := config.Default()
	cfg.HTTPThreads = 1
	cfg.PoolSizePerThread = capacity
	pool, err := backend.New(&cfg)
	require.NoError(t, err)
	return pool
}

func TestDispatch_OPTIONS_ReturnsPreflightHeaders(t *testing.T) {
	h := NewDispatchHandler(newTestPool(t, 1), acl.New(nil), slog.Default(), 1024, "")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodOptions, "/SET/k/v", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, POST, PUT, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestDispatch_EmptyCommand_Returns400(t *testing.T) {
	h := NewDispatchHandler(newTestPool(t, 1), acl.New(nil), slog.Default(), 1024, "")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Empty command"}`, rec.Body.String())
}

func TestDispatch_ACLDeny_Returns403(t *testing.T) {
	evaluator := acl.New([]config.ACLConfig{{Disabled: []string{"*"}}})

	h := NewDispatchHandler(newTestPool(t, 1), evaluator, slog.Default(), 1024, "")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/DEBUG/OBJECT/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String())
}

func TestDispatch_CORSHeaderAlwaysSet(t *testing.T) {
	h := NewDispatchHandler(newTestPool(t, 1), acl.New(nil), slog.Default(), 1024, "")
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDispatch_PoolExhausted_Returns503BeforeParseOrACL(t *testing.T) {
	pool := newTestPool(t, 1)
	evaluator := acl.New([]config.ACLConfig{{Disabled: []string{"*"}}})
	h := NewDispatchHandler(pool, evaluator, slog.Default(), 1024, "")
	r := newTestRouter(h)

	lease, err := pool.Lease(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
