package embedding

import (
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/fundmatch/internal/domain"
	"github.com/kailas-cloud/fundmatch/internal/metrics"
)

// CircuitState is the breaker state.
type CircuitState int

const (
	// CircuitClosed lets calls through and counts failures.
	CircuitClosed CircuitState = iota
	// CircuitOpen short-circuits every call until the open interval elapses.
	CircuitOpen
	// CircuitHalfOpen lets exactly one probe through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// Threshold is the number of failures within Window that trips the breaker.
	Threshold int
	Window    time.Duration
	// OpenFor is how long the breaker stays open before admitting a probe.
	OpenFor time.Duration
}

// DefaultBreakerConfig returns the stock breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Window:    30 * time.Second,
		OpenFor:   30 * time.Second,
	}
}

// CircuitBreaker trips after Threshold failures inside a sliding Window, stays
// open for OpenFor, then admits a single half-open probe whose outcome closes
// or re-opens it.
type CircuitBreaker struct {
	mu       sync.Mutex
	name     string
	cfg      BreakerConfig
	failures []time.Time
	openedAt time.Time
	state    CircuitState
	probing  bool
	now      func() time.Time
}

// NewCircuitBreaker creates a closed breaker. name labels the state gauge.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = def.OpenFor
	}
	cb := &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
	metrics.EmbeddingBreakerState.WithLabelValues(name).Set(float64(CircuitClosed))
	return cb
}

// Allow returns nil if a call may proceed, or an error wrapping ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		wait := cb.cfg.OpenFor - cb.now().Sub(cb.openedAt)
		if wait <= 0 {
			cb.setState(CircuitHalfOpen)
			cb.probing = true
			return nil
		}
		return fmt.Errorf("%w: %s (retry in %s)", domain.ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
	case CircuitHalfOpen:
		if !cb.probing {
			cb.probing = true
			return nil
		}
		return fmt.Errorf("%w: %s probe in flight", domain.ErrCircuitOpen, cb.name)
	default:
		return fmt.Errorf("%w: %s in unknown state %d", domain.ErrCircuitOpen, cb.name, cb.state)
	}
}

// RecordSuccess closes the breaker and forgets past failures.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = cb.failures[:0]
	cb.probing = false
	cb.setState(CircuitClosed)
}

// RecordFailure counts a failure. A failed probe re-opens the breaker immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.state == CircuitHalfOpen {
		cb.probing = false
		cb.openedAt = now
		cb.setState(CircuitOpen)
		return
	}
	if cb.state == CircuitOpen {
		return
	}

	cutoff := now.Add(-cb.cfg.Window)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = append(kept, now)

	if len(cb.failures) >= cb.cfg.Threshold {
		cb.failures = cb.failures[:0]
		cb.openedAt = now
		cb.setState(CircuitOpen)
	}
}

// Abandon releases a probe whose outcome is unknown (caller went away), so the
// next call may probe again.
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.probing = false
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.EmbeddingBreakerState.WithLabelValues(cb.name).Set(float64(s))
	metrics.EmbeddingBreakerTransitionsTotal.WithLabelValues(cb.name, s.String()).Inc()
}
