// Package handler serves the JSON query API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Querier runs queries. *executor.Executor implements it.
type Querier interface {
	Query(ctx context.Context, p executor.SearchParameters) (*resultset.ResultSet, error)
}

// Snapshots answers index progress questions. *txn.Manager implements it.
type Snapshots interface {
	LastIndexedSnapshot(s repository.StoreRef) int64
	IsSnapshotIndexed(s repository.StoreRef, id int64) bool
	IsSnapshotSearchable(s repository.StoreRef, id int64) bool
}

// Handler holds the query endpoints. A nil cache disables caching.
type Handler struct {
	exec   Querier
	cache  *cache.QueryCache
	snaps  Snapshots
	logger *slog.Logger
}

// New creates a Handler.
func New(exec Querier, queryCache *cache.QueryCache, snaps Snapshots) *Handler {
	return &Handler{
		exec:   exec,
		cache:  queryCache,
		snaps:  snaps,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/stores/{store}/snapshots", h.Snapshot)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Query runs the SearchParameters in the request body.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var p executor.SearchParameters
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, 400, "decoding search parameters: %v", err))
		return
	}

	var (
		rs  *resultset.ResultSet
		hit bool
		err error
	)
	if h.cache != nil {
		rs, hit, err = h.cache.GetOrCompute(ctx, scope(ctx), &p, func(ctx context.Context) (*resultset.ResultSet, error) {
			return h.exec.Query(ctx, p)
		})
	} else {
		rs, err = h.exec.Query(ctx, p)
	}
	if err != nil {
		log.Warn("query failed", "language", p.Language, "store", p.Store(), "error", err)
		h.writeError(w, err)
		return
	}

	log.Info("query completed",
		"language", p.Language,
		"store", p.Store(),
		"rows", rs.Length(),
		"limited_by", rs.Metadata().LimitedBy,
		"cache_hit", hit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeJSON(w, http.StatusOK, rs)
}

// scope keys cached results by the caller's visibility.
func scope(ctx context.Context) string {
	if c, ok := auth.CallerFrom(ctx); ok {
		return c.Scope()
	}
	return "system"
}

type snapshotStatus struct {
	Store       repository.StoreRef `json:"store"`
	LastIndexed int64               `json:"lastIndexed"`
	Snapshot    *int64              `json:"snapshot,omitempty"`
	Indexed     *bool               `json:"indexed,omitempty"`
	Searchable  *bool               `json:"searchable,omitempty"`
}

// Snapshot reports the last indexed snapshot of a store and, given ?id=,
// whether that snapshot is indexed and searchable.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	s := repository.StoreRef(r.PathValue("store"))
	status := snapshotStatus{Store: s, LastIndexed: h.snaps.LastIndexedSnapshot(s)}
	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, 400, "snapshot id %q is not a number", raw))
			return
		}
		indexed, searchable := h.snaps.IsSnapshotIndexed(s, id), h.snaps.IsSnapshotSearchable(s, id)
		status.Snapshot, status.Indexed, status.Searchable = &id, &indexed, &searchable
	}
	h.writeJSON(w, http.StatusOK, status)
}

// CacheStats reports cache counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// CacheInvalidate drops cached results, of one store given ?store=.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	var (
		n   int64
		err error
	)
	if s := r.URL.Query().Get("store"); s != "" {
		n, err = h.cache.InvalidateStore(r.Context(), repository.StoreRef(s))
	} else {
		n, err = h.cache.Invalidate(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keysDeleted": n})
}

type errorBody struct {
	Error    string   `json:"error"`
	Language string   `json:"language,omitempty"`
	Position *int     `json:"position,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := errorBody{Error: err.Error()}
	var (
		appErr     *apperrors.AppError
		parseErr   *apperrors.ParseError
		unresolved *apperrors.UnresolvedError
	)
	switch {
	case errors.As(err, &parseErr):
		body.Language, body.Position = parseErr.Language, &parseErr.Pos
	case errors.As(err, &unresolved):
		body.Missing = unresolved.Names
	case errors.As(err, &appErr):
		body.Error = appErr.Message
	}
	if status == http.StatusInternalServerError {
		body = errorBody{Error: "internal error"}
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
