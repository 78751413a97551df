// Package cache keeps executed result sets in Redis, keyed by store, caller
// scope and search parameters. The cache is an optimisation: backend
// failures are logged and the query runs uncached, and a circuit breaker
// stops calling a backend that keeps failing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache. pkg/redis.Client
// implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats counts lookups since start.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Breaker string `json:"breaker"`
}

// QueryCache is a read-through result set cache.
type QueryCache struct {
	backend   Backend
	ttl       time.Duration
	opTimeout time.Duration
	breaker   *resilience.CircuitBreaker
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New creates a QueryCache over backend.
func New(backend Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		backend:   backend,
		ttl:       cfg.CacheTTL,
		opTimeout: cfg.OpTimeout,
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		ResetTimeout:     cfg.BreakerReset,
		OnStateChange: func(name string, _, to resilience.State) {
			m.BreakerState(name, int(to))
		},
	})
	return c
}

// Cacheable reports whether p reads only committed data. Queries that see
// a transaction's own changes are never cached.
func Cacheable(p *executor.SearchParameters) bool {
	return p.TxID == "" || p.ExcludeUncommitted
}

// Key derives the cache key for p as seen by scope. Keys of one store share
// a prefix so the store can be invalidated alone.
func Key(scope string, p *executor.SearchParameters) (string, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding search parameters: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write(params)
	return storePrefix(p.Store()) + hex.EncodeToString(h.Sum(nil)[:16]), nil
}

func storePrefix(store repository.StoreRef) string {
	sum := sha256.Sum256([]byte(store))
	return keyPrefix + hex.EncodeToString(sum[:8]) + ":"
}

// GetOrCompute returns the cached result set for p, or runs compute and
// caches its result. Concurrent calls for the same key share one compute.
// The flag reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	scope string,
	p *executor.SearchParameters,
	compute func(context.Context) (*resultset.ResultSet, error),
) (*resultset.ResultSet, bool, error) {
	if !Cacheable(p) {
		rs, err := compute(ctx)
		return rs, false, err
	}
	key, err := Key(scope, p)
	if err != nil {
		return nil, false, err
	}
	if rs, ok := c.get(ctx, key); ok {
		return rs, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		rs, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, rs)
		return rs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*resultset.ResultSet), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*resultset.ResultSet, bool) {
	var (
		data  []byte
		found bool
	)
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		data, found, err = c.backend.Get(ctx, key)
		return err
	})
	if err == nil && found {
		var rs resultset.ResultSet
		if err = json.Unmarshal(data, &rs); err == nil {
			c.hits.Add(1)
			c.metrics.CacheResult(true)
			return &rs, true
		}
	}
	if err != nil {
		logger.FromContext(ctx).Warn("cache get failed", "key", key, "error", err)
	}
	c.misses.Add(1)
	c.metrics.CacheResult(false)
	return nil, false
}

func (c *QueryCache) set(ctx context.Context, key string, rs *resultset.ResultSet) {
	data, err := json.Marshal(rs)
	if err != nil {
		c.logger.Error("encoding result set", "key", key, "error", err)
		return
	}
	err = c.call(ctx, func(ctx context.Context) error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		logger.FromContext(ctx).Warn("cache set failed", "key", key, "error", err)
	}
}

// call runs one backend operation through the breaker under opTimeout.
func (c *QueryCache) call(ctx context.Context, fn func(context.Context) error) error {
	return c.breaker.Execute(func() error {
		if c.opTimeout <= 0 {
			return fn(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return fn(ctx)
	})
}

// InvalidateStore drops every cached result of store.
func (c *QueryCache) InvalidateStore(ctx context.Context, store repository.StoreRef) (int64, error) {
	return c.flush(ctx, storePrefix(store)+"*")
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	return c.flush(ctx, keyPrefix+"*")
}

func (c *QueryCache) flush(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.backend.FlushByPattern(ctx, pattern)
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache %s: %w", pattern, err)
	}
	c.logger.Info("cache invalidated", "pattern", pattern, "keys_deleted", deleted)
	return deleted, nil
}

// Stats reports hit and miss counts and the breaker state.
func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Breaker: c.breaker.GetState().String(),
	}
}
