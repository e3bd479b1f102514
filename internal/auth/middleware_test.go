package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(owner))
	})
}

func TestRequireAPIKeySetsOwner(t *testing.T) {
	store := testAPIKeyStore(t)
	rawKey, _, err := store.Create("laptop", "owner-1")
	require.NoError(t, err)
	handler := RequireAPIKey(store, ownerEcho())

	r := httptest.NewRequest("GET", "/api/plans", nil)
	r.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner-1", w.Body.String())
}

func TestRequireAPIKeyRejects(t *testing.T) {
	handler := RequireAPIKey(testAPIKeyStore(t), ownerEcho())

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"unknown key", "Bearer tp_nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/plans", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestRequireAPIKeySkipsNonAPIPaths(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAPIKey(testAPIKeyStore(t), inner)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRequireAPIKeyRateLimitsFailures(t *testing.T) {
	store := testAPIKeyStore(t)
	rawKey, _, err := store.Create("laptop", "owner-1")
	require.NoError(t, err)
	handler := RequireAPIKey(store, ownerEcho())

	send := func(key string) int {
		r := httptest.NewRequest("GET", "/api/plans", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("Authorization", "Bearer "+key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	// Successful requests never count against the limit.
	for i := 0; i < rateLimitMaxFail+5; i++ {
		require.Equal(t, http.StatusOK, send(rawKey), "request %d", i)
	}
	for i := 0; i < rateLimitMaxFail; i++ {
		require.Equal(t, http.StatusUnauthorized, send("tp_wrong"), "failure %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(rawKey))
}

func TestOwnerFromContextEmpty(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok := OwnerFromContext(r.Context())
	assert.False(t, ok)
	_, ok = OwnerFromContext(WithOwner(r.Context(), ""))
	assert.False(t, ok, "empty owner should not count")
}
