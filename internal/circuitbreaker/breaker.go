// Package circuitbreaker guards calls to a flapping marketplace provider
// so repeated failures degrade fast instead of eating the full network
// timeout on every aggregation request.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker is open")

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

type Config struct {
	MaxFailures     int           // consecutive failures before opening (default 5)
	Timeout         time.Duration // how long to stay open (default 30s)
	HalfOpenSuccess int           // successes needed in half-open to close (default 1)
}

type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	maxFailures     int
	timeout         time.Duration
	halfOpenSuccess int
}

func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = 1
	}

	return &CircuitBreaker{
		state:           StateClosed,
		maxFailures:     cfg.MaxFailures,
		timeout:         cfg.Timeout,
		halfOpenSuccess: cfg.HalfOpenSuccess,
	}
}

// Call runs fn under breaker protection. While open, Call fails
// immediately with ErrOpen until the open timeout has passed.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
		} else {
			cb.mu.Unlock()
			return ErrOpen
		}
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
		return err
	}

	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		// Any failure in half-open reopens the circuit.
		cb.setState(StateOpen)
		cb.successCount = 0
	} else if cb.failureCount >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenSuccess {
			cb.setState(StateClosed)
			cb.failureCount = 0
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
}
