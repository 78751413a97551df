package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/ratelimit"
)

func setup(t *testing.T, rateLimit int) (http.Handler, string, *auth.Caller) {
	t.Helper()
	v := apikey.NewValidator(apikey.NewMemoryStore())
	raw, _, err := v.CreateKey(context.Background(), apikey.KeyInfo{
		Principal:   "alice",
		Authorities: []string{"GROUP_HR"},
		RateLimit:   rateLimit,
	})
	require.NoError(t, err)

	seen := &auth.Caller{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, _ = auth.CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Authenticate(v)(RateLimit(ratelimit.New(time.Minute))(inner))
	return h, raw, seen
}

func do(h http.Handler, path string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthenticate(t *testing.T) {
	h, raw, seen := setup(t, 0)

	assert.Equal(t, http.StatusUnauthorized, do(h, "/api/v1/query", nil))
	assert.Equal(t, http.StatusUnauthorized, do(h, "/api/v1/query", map[string]string{"X-API-Key": "wrong"}))
	assert.Equal(t, http.StatusNoContent, do(h, "/health/live", nil))

	require.Equal(t, http.StatusNoContent, do(h, "/api/v1/query", map[string]string{"Authorization": "Bearer " + raw}))
	assert.Equal(t, "alice", seen.Principal)
	assert.Equal(t, []string{"GROUP_HR"}, seen.Authorities)

	assert.Equal(t, http.StatusNoContent, do(h, "/api/v1/query", map[string]string{"X-API-Key": raw}))
}

func TestRateLimit(t *testing.T) {
	h, raw, _ := setup(t, 2)
	key := map[string]string{"X-API-Key": raw}
	assert.Equal(t, http.StatusNoContent, do(h, "/api/v1/query", key))
	assert.Equal(t, http.StatusNoContent, do(h, "/api/v1/query", key))
	assert.Equal(t, http.StatusTooManyRequests, do(h, "/api/v1/query", key))
}
