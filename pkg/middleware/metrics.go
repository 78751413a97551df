// Package middleware holds the HTTP middleware shared by the indexer and
// search servers: request ids, Prometheus metrics, request timeouts and
// CORS.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency and the
// in-flight gauge. A nil m disables recording.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

const storesPrefix = "/api/v1/stores/"

var fixedRoutes = map[string]bool{
	"/api/v1/query":            true,
	"/api/v1/events":           true,
	"/api/v1/transactions":     true,
	"/api/v1/drain":            true,
	"/api/v1/cache/stats":      true,
	"/api/v1/cache/invalidate": true,
	"/health/live":             true,
	"/health/ready":            true,
}

// normalizePath maps a request path onto its route template. Store
// references contain slashes once decoded, so they are located by the
// route suffix rather than by segment. Unknown paths share one label.
func normalizePath(path string) string {
	if fixedRoutes[path] {
		return path
	}
	rest, ok := strings.CutPrefix(path, storesPrefix)
	if !ok {
		return "other"
	}
	if strings.Contains(rest, "/transactions/") {
		return storesPrefix + "{store}/transactions/{tx}"
	}
	for _, suffix := range []string{"/drain", "/snapshots"} {
		if strings.HasSuffix(rest, suffix) {
			return storesPrefix + "{store}" + suffix
		}
	}
	return "other"
}
