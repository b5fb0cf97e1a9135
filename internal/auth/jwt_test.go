package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestValidateAccessToken_RoundTrip(t *testing.T) {
	v := NewVerifier(testSecret)

	token, err := v.SignAccessToken("user-123", "ops@example.com", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestValidateAccessToken_Rejections(t *testing.T) {
	v := NewVerifier(testSecret)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewVerifier("another-secret-that-is-long-enough!!")
		token, err := other.SignAccessToken("user-123", "", "member", time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateAccessToken(token)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.SignAccessToken("user-123", "", "member", -time.Minute)
		require.NoError(t, err)

		_, err = v.ValidateAccessToken(token)
		require.Error(t, err)
	})

	t.Run("missing user id", func(t *testing.T) {
		token, err := v.SignAccessToken("", "", "member", time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateAccessToken(token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing user id")
	})

	t.Run("non-HMAC algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{UserID: "user-123"})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.ValidateAccessToken(token)
		require.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.ValidateAccessToken("not.a.jwt")
		require.Error(t, err)
	})
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(testSecret)

	var seen *AccessClaims
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes claims through", func(t *testing.T) {
		token, err := v.SignAccessToken("user-123", "a@b.c", "member", time.Hour)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(token))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-123", seen.UserID)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest("bogus"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	v := NewVerifier(testSecret)
	handler := Middleware(v)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("admin passes", func(t *testing.T) {
		token, err := v.SignAccessToken("user-123", "", RoleAdmin, time.Hour)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(token))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("member forbidden", func(t *testing.T) {
		token, err := v.SignAccessToken("user-123", "", "member", time.Hour)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(token))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
