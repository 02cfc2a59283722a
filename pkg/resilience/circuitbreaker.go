// Package resilience stops calls to a failing dependency until it has had
// time to recover.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed allows all calls through
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown has elapsed
	StateOpen
	// StateHalfOpen lets a single probe through to test recovery
	StateHalfOpen
)

// String returns the string representation of the state
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

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a CircuitBreaker.
type Config struct {
	// MaxFailures consecutive failures open the circuit. Values below 1
	// are treated as 1.
	MaxFailures int
	// Cooldown is how long the circuit stays open before a probe.
	Cooldown time.Duration
	// OnStateChange, when set, is called after every transition. It runs
	// without the breaker lock held.
	OnStateChange func(from, to State)
}

// CircuitBreaker counts consecutive failures of the calls it runs and
// short-circuits further calls once MaxFailures is reached.
type CircuitBreaker struct {
	cfg      Config
	now      func() time.Time
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the circuit is open. A nil error from fn counts as
// a success and closes a half-open circuit; any other error counts against
// the failure budget and is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

// State returns the current state. An open circuit whose cooldown has
// elapsed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return true
	case StateOpen:
		if !cb.cooledDown() {
			cb.mu.Unlock()
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return true
	default:
		// One probe at a time while half-open.
		if cb.probing {
			cb.mu.Unlock()
			return false
		}
		cb.probing = true
		cb.mu.Unlock()
		return true
	}
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	from := cb.state
	cb.probing = false
	if success {
		cb.failures = 0
		cb.state = StateClosed
	} else {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
