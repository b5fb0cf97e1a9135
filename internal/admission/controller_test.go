package admission

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metergate-platform/metergate/internal/auth"
)

func newTestController(t *testing.T, store Store) *Controller {
	t.Helper()
	c := NewController(store, nil)
	c.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func requestWithClaims(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/limits", nil)
	ctx := context.WithValue(req.Context(), auth.UserClaimsKey, &auth.AccessClaims{
		UserID: userID,
		Role:   auth.RoleAdmin,
	})
	return req.WithContext(ctx)
}

func TestControllerMiddleware_DeniesOverBudget(t *testing.T) {
	store, err := NewMemoryStore(testAdmissionCfg())
	require.NoError(t, err)
	controller := newTestController(t, store)

	handler := controller.Middleware(ClassGeneral)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	userID := "11111111-2222-3333-4444-555555555555"
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithClaims(userID))
		require.Equal(t, http.StatusOK, rec.Code, "request %d within budget", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithClaims(userID))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too many requests")
}

func TestControllerMiddleware_RejectsMissingClaims(t *testing.T) {
	store, err := NewMemoryStore(testAdmissionCfg())
	require.NoError(t, err)
	controller := newTestController(t, store)

	handler := controller.Middleware(ClassGeneral)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without claims")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/limits", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestControllerCheck_FailsOpenOnStoreError(t *testing.T) {
	store, mr := newTestRedisStore(t)
	controller := newTestController(t, store)
	mr.Close()

	decision := controller.Check(context.Background(), "alice", ClassGeneral)
	assert.True(t, decision.Allowed, "store outage must not block privileged operations")
}

func TestControllerCheck_RetryAfterNeverNegative(t *testing.T) {
	store, err := NewMemoryStore(testAdmissionCfg())
	require.NoError(t, err)
	controller := newTestController(t, store)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		controller.Check(ctx, "bob", ClassDelete)
	}
	decision := controller.Check(ctx, "bob", ClassDelete)
	require.False(t, decision.Allowed)
	assert.GreaterOrEqual(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, 60*time.Second)
}

func TestControllerStatus_DoesNotConsume(t *testing.T) {
	store, err := NewMemoryStore(testAdmissionCfg())
	require.NoError(t, err)
	controller := newTestController(t, store)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := controller.Status(ctx, "carol", ClassBatch)
		require.NoError(t, err)
	}
	res, err := controller.Status(ctx, "carol", ClassBatch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}
