package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates or assigns a request id and stores it in the request
// context for logger.FromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(r *http.Request) string {
	id, _ := logger.RequestID(r.Context())
	return id
}
