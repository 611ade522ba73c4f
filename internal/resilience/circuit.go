// Package resilience wraps calls to upstream HTTP services, the bulletin
// download and the geocoders, in retry and circuit breaker policies.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the breaker position.
type CircuitState int

// Breaker positions.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen rejects calls while the upstream is considered down.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls when the breaker opens and how long it rests.
type CircuitBreakerConfig struct {
	// FailureThreshold is the run of consecutive tripping failures that opens
	// the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before letting a single
	// trial call through.
	ResetTimeout time.Duration
	// ShouldTrip picks the failures that count. Defaults to any error.
	ShouldTrip func(err error) bool
	// OnStateChange observes transitions. Called with the lock held.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after five failures and rests for 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// CircuitBreaker fails fast once an upstream keeps failing, then lets one
// trial call through per ResetTimeout until one succeeds.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	trying   bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	d := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// ExecuteVal runs fn unless the breaker is open, and records the outcome.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	trial, err := cb.acquire()
	if err != nil {
		var zero T
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(trial, err)
	return val, err
}

// State reports the breaker position. An open breaker whose rest period has
// elapsed reads as half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.rested() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Failures returns the current run of consecutive tripping failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) rested() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// acquire admits a call. trial is true for the single call allowed through a
// half-open breaker.
func (cb *CircuitBreaker) acquire() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if !cb.rested() {
			return false, ErrCircuitOpen
		}
		cb.moveTo(CircuitHalfOpen)
		fallthrough
	case CircuitHalfOpen:
		if cb.trying {
			return false, ErrCircuitOpen
		}
		cb.trying = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trying = false
	}

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if cb.state != CircuitClosed {
			cb.moveTo(CircuitClosed)
		}
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		if cb.state != CircuitOpen {
			cb.moveTo(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) moveTo(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
