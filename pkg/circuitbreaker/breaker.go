// Package circuitbreaker stops calling a dependency that keeps failing and
// lets it be tried again after a cool-down.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
)

// ErrOpen is returned by Call while the breaker is tripped
var ErrOpen = errors.New("circuit breaker open")

// State is a snapshot of the breaker
type State struct {
	Name          string        `json:"name"`
	Enabled       bool          `json:"enabled"`
	Open          bool          `json:"open"`
	FailureCount  int           `json:"failure_count"`
	FailThreshold int           `json:"fail_threshold"`
	FailureWindow time.Duration `json:"failure_window"`
	LastFailure   time.Time     `json:"last_failure"`
	TripTime      time.Time     `json:"trip_time"`
}

// CircuitBreaker trips after failThreshold failures inside failureWindow and
// stays open for resetTimeout
type CircuitBreaker struct {
	name          string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	now           func() time.Time
	logger        logger.Logger
	mu            sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, enabled bool, threshold int, window time.Duration, resetTimeout time.Duration, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		name:          name,
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		now:           time.Now,
		logger:        log,
	}
}

// Call runs fn unless the breaker is open, recording its outcome
func (cb *CircuitBreaker) Call(fn func() error) error {
	if cb.IsOpen() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// RecordFailure records a failure and reports whether the circuit is now open
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.resetTimeout {
			return true
		}
		cb.logger.InfoWithComponent(logger.Oracle, "Circuit breaker %s: attempting to reset after timeout", cb.name)
		cb.tripped = false
		cb.failureCount = 0
	}

	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		cb.logger.ErrorWithComponent(logger.Oracle, "Circuit breaker %s tripped: %d failures in %v window", cb.name, cb.failureCount, cb.failureWindow)
		return true
	}
	return false
}

// RecordSuccess clears the failure count of a closed breaker
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.tripped {
		cb.failureCount = 0
	}
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		return false
	}
	return cb.tripped
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
	cb.logger.NoticeWithComponent(logger.Oracle, "Circuit breaker %s reset manually", cb.name)
}

// State returns a snapshot of the breaker
func (cb *CircuitBreaker) State() State {
	open := cb.IsOpen()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Name:          cb.name,
		Enabled:       cb.enabled,
		Open:          open,
		FailureCount:  cb.failureCount,
		FailThreshold: cb.failThreshold,
		FailureWindow: cb.failureWindow,
		LastFailure:   cb.lastFailure,
		TripTime:      cb.tripTime,
	}
}
