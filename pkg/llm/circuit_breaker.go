package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the provider has failed repeatedly and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means one trial request is in flight.
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

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long an open circuit waits before letting a trial request through.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures and admits a trial request after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a provider that keeps failing. The adapter
// keeps one per provider so an outage at one vendor does not block another.
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         string
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker for provider.
func NewCircuitBreaker(provider string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold < 1 {
		config.Threshold = 1
	}
	return &CircuitBreaker{
		provider:   provider,
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow returns nil if a request may proceed. An open circuit turns
// half-open once ResetAfter has elapsed and lets exactly one trial request through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeCircuitOpen,
			fmt.Sprintf("provider %s unavailable (failed %d times, last failure %v ago)",
				cb.provider, cb.consecutiveFails, since.Round(time.Second)),
			true, nil)
	case CircuitHalfOpen:
		return NewError(ErrorTypeCircuitOpen,
			fmt.Sprintf("provider %s is being tested for recovery", cb.provider), true, nil)
	default:
		return fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and trips the circuit at the threshold.
// A failed trial request reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}
