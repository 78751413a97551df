// Package admin serves the indexer's HTTP API: node events posted directly
// instead of through Kafka, transaction status and background drains.
package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
)

const maxBodyBytes = 4 << 20

// Handler holds the indexer endpoints.
type Handler struct {
	proc   *consumer.Processor
	mgr    *txn.Manager
	logger *slog.Logger
}

// New creates a Handler.
func New(proc *consumer.Processor, mgr *txn.Manager) *Handler {
	return &Handler{
		proc:   proc,
		mgr:    mgr,
		logger: slog.Default().With("component", "indexer-admin"),
	}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/events", h.Events)
	mux.HandleFunc("GET /api/v1/transactions", h.Transactions)
	mux.HandleFunc("GET /api/v1/stores/{store}/transactions/{tx}", h.Transaction)
	mux.HandleFunc("POST /api/v1/stores/{store}/drain", h.Drain)
	mux.HandleFunc("POST /api/v1/drain", h.DrainStores)
}

type eventsResult struct {
	Applied int    `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// Events applies one node event, or a JSON array of them in order. It stops
// at the first failing event and reports how many were applied.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding node events: %v", err))
		return
	}
	var events []consumer.NodeEvent
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding node events: %v", err))
			return
		}
	} else {
		var ev consumer.NodeEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding node event: %v", err))
			return
		}
		events = []consumer.NodeEvent{ev}
	}

	log := logger.FromContext(r.Context())
	res := eventsResult{}
	for _, ev := range events {
		if err := h.proc.Apply(r.Context(), ev); err != nil {
			log.Warn("node event failed", "store", ev.Store, "tx", ev.TxID, "op", ev.Op, "error", err)
			res.Error = err.Error()
			h.writeJSON(w, apperrors.HTTPStatusCode(err), res)
			return
		}
		res.Applied++
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Transactions reports the number of open indexers.
func (h *Handler) Transactions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]int{"active": h.mgr.Active()})
}

type txStatus struct {
	Store     repository.StoreRef `json:"store"`
	TxID      string              `json:"txId"`
	State     string              `json:"state"`
	Modified  bool                `json:"modified"`
	Remaining int                 `json:"remaining"`
}

// Transaction reports the state of an open indexer.
func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	s, tx := repository.StoreRef(r.PathValue("store")), r.PathValue("tx")
	ix, ok := h.mgr.Lookup(s, tx)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "no open transaction %s on %s", tx, s))
		return
	}
	h.writeJSON(w, http.StatusOK, txStatus{
		Store:     s,
		TxID:      tx,
		State:     ix.State().String(),
		Modified:  ix.Modified(),
		Remaining: ix.Remaining(),
	})
}

// Drain runs one background pass over a store, or passes until nothing is
// left given ?all=true.
func (h *Handler) Drain(w http.ResponseWriter, r *http.Request) {
	s := repository.StoreRef(r.PathValue("store"))
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	var (
		res txn.DrainResult
		err error
	)
	if all {
		res, err = h.mgr.DrainAll(r.Context(), s)
	} else {
		res, err = h.mgr.Drain(r.Context(), s)
	}
	if err != nil {
		h.logger.Error("drain failed", "store", s, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// DrainStores drains every store until no background work remains.
func (h *Handler) DrainStores(w http.ResponseWriter, r *http.Request) {
	results := []txn.DrainResult{}
	for _, s := range h.mgr.Stores() {
		res, err := h.mgr.DrainAll(r.Context(), s)
		if err != nil {
			h.logger.Error("drain failed", "store", s, "error", err)
			h.writeError(w, err)
			return
		}
		results = append(results, res)
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
