package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

type txKey struct {
	store repository.StoreRef
	tx    string
}

// DrainResult reports one background pass over a store.
type DrainResult struct {
	Store     repository.StoreRef `json:"store"`
	Processed int                 `json:"processed"`
	Remaining int                 `json:"remaining"`
}

// Manager hands out at most one Indexer per (store, transaction) and runs
// the background full-text worker.
type Manager struct {
	router  *store.Router
	svc     Services
	cfg     config.IndexerConfig
	limiter *rate.Limiter
	drains  singleflight.Group

	mu        sync.Mutex
	active    map[txKey]*Indexer
	dirty     map[repository.StoreRef]bool
	onIndexed Callback
	wake      chan struct{}
	logger    *slog.Logger
}

// NewManager creates a Manager. svc.FTS is replaced by the manager itself so
// that committed transactions wake the worker.
func NewManager(router *store.Router, svc Services) *Manager {
	cfg := router.Config()
	limit := rate.Inf
	if cfg.DrainRate > 0 {
		limit = rate.Limit(cfg.DrainRate)
	}
	m := &Manager{
		router:  router,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		active:  make(map[txKey]*Indexer),
		dirty:   make(map[repository.StoreRef]bool),
		wake:    make(chan struct{}, 1),
		logger:  slog.Default().With("component", "txn-manager"),
	}
	svc.FTS = m
	m.svc = svc
	return m
}

// OnIndexed sets the callback registered on every indexer the manager
// creates, including background passes.
func (m *Manager) OnIndexed(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIndexed = cb
}

// Indexer returns the indexer of (store, txID), starting one if needed.
func (m *Manager) Indexer(s repository.StoreRef, txID string) (*Indexer, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: empty transaction id", apperrors.ErrInvalidInput)
	}
	key := txKey{store: s, tx: txID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ix, ok := m.active[key]; ok {
		return ix, nil
	}
	ix, err := m.newIndexerLocked(s, txID)
	if err != nil {
		return nil, err
	}
	ix.onDone = func() {
		m.mu.Lock()
		delete(m.active, key)
		m.mu.Unlock()
	}
	m.active[key] = ix
	return ix, nil
}

func (m *Manager) newIndexerLocked(s repository.StoreRef, txID string) (*Indexer, error) {
	engine, err := m.router.Route(s)
	if err != nil {
		return nil, err
	}
	ix, err := New(s, txID, engine, m.svc, m.router.PendingDir(), m.cfg.DeltaSpillDocs)
	if err != nil {
		return nil, fmt.Errorf("starting indexer for %s: %w", s, err)
	}
	ix.callback = m.onIndexed
	return ix, nil
}

// Lookup returns the open indexer of (store, txID).
func (m *Manager) Lookup(s repository.StoreRef, txID string) (*Indexer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ix, ok := m.active[txKey{store: s, tx: txID}]
	return ix, ok
}

// Active returns the number of open indexers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stores lists the stores with an index.
func (m *Manager) Stores() []repository.StoreRef { return m.router.Stores() }

// RequiresIndex queues store for the background worker.
func (m *Manager) RequiresIndex(s repository.StoreRef) {
	m.mu.Lock()
	m.dirty[s] = true
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) takeDirty() []repository.StoreRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.StoreRef, 0, len(m.dirty))
	for s := range m.dirty {
		out = append(out, s)
	}
	m.dirty = make(map[repository.StoreRef]bool)
	return out
}

// LastIndexedSnapshot answers for the committed index of store.
func (m *Manager) LastIndexedSnapshot(s repository.StoreRef) int64 {
	return m.committed(s, func(leaves []index.Reader) (int64, error) {
		return lastIndexedSnapshot(leaves, s)
	})
}

// IsSnapshotIndexed answers for the committed index of store.
func (m *Manager) IsSnapshotIndexed(s repository.StoreRef, id int64) bool {
	return m.committed(s, func(leaves []index.Reader) (int64, error) {
		return boolVersion(isSnapshotIndexed(leaves, s, id))
	}) == 1
}

// IsSnapshotSearchable answers for the committed index of store.
func (m *Manager) IsSnapshotSearchable(s repository.StoreRef, id int64) bool {
	return m.committed(s, func(leaves []index.Reader) (int64, error) {
		return boolVersion(isSnapshotSearchable(leaves, s, id))
	}) == 1
}

func (m *Manager) committed(s repository.StoreRef, query func(leaves []index.Reader) (int64, error)) int64 {
	engine, ok := m.router.Lookup(s)
	if !ok {
		return -1
	}
	g := engine.Acquire()
	defer g.Release()
	v, err := query(g.Leaves())
	if err != nil {
		m.logger.Warn("snapshot lookup failed, version unknown", "store", s, "error", err)
		return -1
	}
	return v
}

// Drain runs one background pass over store in its own transaction.
// Concurrent calls for the same store share a single pass.
func (m *Manager) Drain(ctx context.Context, s repository.StoreRef) (DrainResult, error) {
	v, err, _ := m.drains.Do(string(s), func() (any, error) {
		return m.drain(ctx, s)
	})
	if err != nil {
		return DrainResult{Store: s}, err
	}
	return v.(DrainResult), nil
}

func (m *Manager) drain(ctx context.Context, s repository.StoreRef) (DrainResult, error) {
	res := DrainResult{Store: s}
	m.mu.Lock()
	ix, err := m.newIndexerLocked(s, "fts-"+uuid.NewString())
	m.mu.Unlock()
	if err != nil {
		return res, err
	}
	cb := ix.callback
	ix.callback = nil

	n, err := ix.UpdateFullTextSearch(ctx, m.cfg.DrainBatchSize)
	if err != nil || n == 0 {
		if rbErr := ix.Rollback(); rbErr != nil {
			m.logger.Warn("rolling back background pass", "store", s, "error", rbErr)
		}
		return res, err
	}
	ix.RegisterCallBack(cb)
	if err := ix.Commit(); err != nil {
		return res, err
	}
	res.Processed = n
	res.Remaining = ix.Remaining()
	return res, nil
}

// DrainAll drains store until no background work remains, pacing passes
// with the drain rate limiter.
func (m *Manager) DrainAll(ctx context.Context, s repository.StoreRef) (DrainResult, error) {
	total := DrainResult{Store: s}
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return total, err
		}
		res, err := m.Drain(ctx, s)
		if err != nil {
			return total, err
		}
		total.Processed += res.Processed
		total.Remaining = res.Remaining
		// a pass that found nothing means markers and unindexed content
		// are both exhausted
		if res.Processed == 0 {
			return total, nil
		}
	}
}

// Run polls every store on the drain interval and drains stores reported
// by RequiresIndex as soon as they are committed. It returns when ctx ends.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.DrainInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.logger.Info("background indexer started", "interval", interval, "rate", m.cfg.DrainRate)
	for {
		var stores []repository.StoreRef
		select {
		case <-ctx.Done():
			m.logger.Info("background indexer stopping")
			return
		case <-m.wake:
			stores = m.takeDirty()
		case <-ticker.C:
			stores = m.router.Stores()
		}
		for _, s := range stores {
			res, err := m.DrainAll(ctx, s)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Error("background indexing failed", "store", s, "error", err)
				continue
			}
			if res.Processed > 0 {
				m.logger.Info("background indexing pass complete", "store", s, "processed", res.Processed)
			}
		}
	}
}
