// Package store maps repository stores to their index engines. Each store
// owns an independent indexer.Engine backed by its own data directory.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

const (
	storesDir  = "stores"
	pendingDir = "pending"
)

// Router maps store refs to engines, opening them on first use.
type Router struct {
	cfg     config.IndexerConfig
	mu      sync.RWMutex
	engines map[repository.StoreRef]*indexer.Engine
	closed  bool
	logger  *slog.Logger
}

// NewRouter opens every store already present under cfg.DataDir. A
// writable router discards pending deltas left by a previous process.
func NewRouter(cfg config.IndexerConfig) (*Router, error) {
	r := &Router{
		cfg:     cfg,
		engines: make(map[repository.StoreRef]*indexer.Engine),
		logger:  slog.Default().With("component", "store-router"),
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, storesDir), 0755); err != nil {
		return nil, fmt.Errorf("creating stores directory: %w", err)
	}
	if !cfg.ReadOnly {
		// pending deltas of a previous process can never commit
		if err := os.RemoveAll(r.PendingDir()); err != nil {
			return nil, fmt.Errorf("clearing pending directory: %w", err)
		}
		if err := os.MkdirAll(r.PendingDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating pending directory: %w", err)
		}
	}
	if _, err := r.discover(); err != nil {
		r.closeAll()
		return nil, err
	}
	r.logger.Info("store router ready", "stores", len(r.engines), "read_only", cfg.ReadOnly)
	return r, nil
}

// discover opens store directories that have no engine yet and returns how
// many it opened.
func (r *Router) discover() (int, error) {
	entries, err := os.ReadDir(filepath.Join(r.cfg.DataDir, storesDir))
	if err != nil {
		return 0, fmt.Errorf("listing stores: %w", err)
	}
	opened := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ref, ok := decodeDir(entry.Name())
		if !ok {
			r.logger.Warn("skipping unrecognised store directory", "dir", entry.Name())
			continue
		}
		if _, known := r.Lookup(ref); known {
			continue
		}
		if _, err := r.open(ref); err != nil {
			return opened, err
		}
		opened++
	}
	return opened, nil
}

// PendingDir is where transaction deltas spill before commit. It lives on
// the same filesystem as the stores so commit can rename segments.
func (r *Router) PendingDir() string {
	return filepath.Join(r.cfg.DataDir, pendingDir)
}

// Config returns the indexer configuration the router was built with.
func (r *Router) Config() config.IndexerConfig {
	return r.cfg
}

// Route returns the engine of store, creating it if needed. A read-only
// router only returns stores it has discovered.
func (r *Router) Route(store repository.StoreRef) (*indexer.Engine, error) {
	if store == "" {
		return nil, fmt.Errorf("%w: empty store ref", apperrors.ErrInvalidInput)
	}
	if e, ok := r.Lookup(store); ok {
		return e, nil
	}
	if r.cfg.ReadOnly {
		return nil, fmt.Errorf("%w: store %s is not indexed here", apperrors.ErrReadOnly, store)
	}
	return r.open(store)
}

func (r *Router) open(store repository.StoreRef) (*indexer.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("store router closed")
	}
	if e, ok := r.engines[store]; ok {
		return e, nil
	}
	dir := filepath.Join(r.cfg.DataDir, storesDir, encodeDir(store))
	e, err := indexer.NewEngine(r.cfg, dir)
	if err != nil {
		return nil, fmt.Errorf("creating engine for store %s: %w", store, err)
	}
	r.engines[store] = e
	r.logger.Info("store engine initialized", "store", store, "data_dir", dir)
	return e, nil
}

// Lookup returns the engine of store without creating it.
func (r *Router) Lookup(store repository.StoreRef) (*indexer.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[store]
	return e, ok
}

// Stores returns the open stores, sorted.
func (r *Router) Stores() []repository.StoreRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repository.StoreRef, 0, len(r.engines))
	for s := range r.engines {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RefreshAll adopts manifests written by other processes. A read-only
// router first opens stores created since the last refresh. It returns the
// number of stores whose generation advanced or that were newly opened.
func (r *Router) RefreshAll() int {
	n := 0
	if r.cfg.ReadOnly {
		opened, err := r.discover()
		if err != nil {
			r.logger.Error("store discovery failed", "error", err)
		}
		n += opened
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for store, e := range r.engines {
		changed, err := e.Refresh()
		if err != nil {
			r.logger.Error("refresh failed", "store", store, "error", err)
			continue
		}
		if changed {
			n++
		}
	}
	return n
}

// StartRefresh calls RefreshAll on every interval tick until ctx ends.
// onChange, when set, runs after a refresh that changed anything.
func (r *Router) StartRefresh(ctx context.Context, interval time.Duration, onChange func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if r.RefreshAll() > 0 && onChange != nil {
					onChange()
				}
			}
		}
	}()
}

// StartCompaction runs every engine's compaction loop until ctx ends.
// Stores opened later are picked up on their first Route by the caller.
func (r *Router) StartCompaction(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.engines {
		e.StartCompactionLoop(ctx)
	}
}

// Close closes every engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.closeAll()
}

func (r *Router) closeAll() error {
	var firstErr error
	for store, e := range r.engines {
		if err := e.Close(); err != nil {
			r.logger.Error("close failed", "store", store, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	r.engines = make(map[repository.StoreRef]*indexer.Engine)
	return firstErr
}

// encodeDir turns workspace://SpacesStore into workspace~SpacesStore.
func encodeDir(store repository.StoreRef) string {
	return strings.Replace(string(store), "://", "~", 1)
}

func decodeDir(name string) (repository.StoreRef, bool) {
	i := strings.Index(name, "~")
	if i <= 0 || i == len(name)-1 {
		return "", false
	}
	return repository.StoreRef(name[:i] + "://" + name[i+1:]), true
}
