// Package middleware authenticates API requests with API keys and applies
// per-key rate limits.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/ratelimit"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
)

type keyInfoKey struct{}

func exempt(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics"
}

// Authenticate rejects requests without a valid key and attaches the key's
// caller to the request context. Health and metrics endpoints are exempt.
func Authenticate(v *apikey.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			raw := extractAPIKey(r)
			if raw == "" {
				writeError(w, apperrors.New(apperrors.ErrUnauthenticated, 401, "missing api key"))
				return
			}
			info, err := v.Validate(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, apperrors.ErrUnauthenticated) {
					logger.FromContext(r.Context()).Error("validating api key", "error", err)
				}
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), keyInfoKey{}, info)
			ctx = auth.WithCaller(ctx, info.Caller())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyInfo returns the key validated by Authenticate.
func KeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(keyInfoKey{}).(*apikey.KeyInfo)
	return info
}

// RateLimit enforces the rate limit of the authenticated key. Requests
// without a key pass through.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := KeyInfo(r.Context())
			if info == nil || exempt(r) || l.Allow(info.ID, info.RateLimit) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "60")
			writeError(w, apperrors.New(apperrors.ErrRateLimited, 429, "rate limit exceeded"))
		})
	}
}

// extractAPIKey reads the Authorization bearer token, then X-API-Key.
func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		msg = "authentication error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
