// Package resilience guards calls to optional dependencies: a circuit
// breaker for the query cache, retry with backoff for event publishing and
// a timeout wrapper for health probes.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase of a circuit breaker. The numeric values are exported
// as a gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and recovers.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int

	// IsFailure classifies errors returned by the guarded call. Errors it
	// rejects, such as a cache miss, count as successes. All non-nil errors
	// are failures when nil.
	IsFailure func(error) bool

	// OnStateChange is called, without the breaker's lock, after every
	// transition.
	OnStateChange func(name string, from, to State)

	now func() time.Time
}

func defaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker opens after FailureThreshold consecutive failures, rejects
// calls for ResetTimeout and then lets HalfOpenMaxRequests probes through.
// A successful probe closes it again.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu               sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenRequests int
}

// NewCircuitBreaker fills zero config values with defaults.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	defaults := defaultCBConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker is open, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(cb.cfg.IsFailure(err))
	return err
}

// GetState returns the current state. An open breaker whose reset timeout
// has passed still reports open until the next call probes it.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.failures = 0
	cb.halfOpenRequests = 0
	cb.state = StateClosed
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateOpen:
		waited := cb.cfg.now().Sub(cb.openedAt)
		if waited < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, cb.cfg.ResetTimeout-waited)
		}
		cb.state = StateHalfOpen
		cb.halfOpenRequests = 1
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.halfOpenRequests++
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	from := cb.state
	if failed {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.cfg.now()
		}
	} else {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.halfOpenRequests = 0
		}
	}
	to, failures := cb.state, cb.failures
	cb.mu.Unlock()
	if from != to && to == StateOpen {
		cb.logger.Warn("circuit opened", "consecutive_failures", failures, "threshold", cb.cfg.FailureThreshold)
	}
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	if to != StateOpen {
		cb.logger.Info("circuit state changed", "from", from, "to", to)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
