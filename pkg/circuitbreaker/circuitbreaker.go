// Package circuitbreaker stops calls to a failing dependency until it
// recovers. Notification delivery wraps the outbound gateway with one so
// a dead gateway fails fast instead of tying up outbox workers.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state, calls pass through.
	StateClosed State = iota
	// StateOpen blocks all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
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

var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open trial quota is spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker tuning.
type Config struct {
	// Name identifies the breaker in state-change callbacks.
	Name string

	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int

	// SuccessThreshold is how many consecutive half-open successes close it.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open before allowing trials.
	Cooldown time.Duration

	// HalfOpenQuota caps in-flight trial calls in the half-open state.
	HalfOpenQuota int

	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config Config

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	trials        int
	lastFailureAt time.Time
}

// New creates a breaker in the closed state. Non-positive thresholds and
// durations get conservative defaults.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenQuota <= 0 {
		cfg.HalfOpenQuota = 1
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// WebhookBreaker is tuned for outbound notification delivery: trips
// fast, waits a full minute, and tests recovery with one call at a time.
func WebhookBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Config{
		Name:             "webhook",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
		HalfOpenQuota:    1,
		OnStateChange:    onStateChange,
	})
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// admit decides whether a call may proceed, transitioning open to
// half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailureAt) < cb.config.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trials = 1
		return nil

	case StateHalfOpen:
		if cb.trials >= cb.config.HalfOpenQuota {
			return ErrTooManyRequests
		}
		cb.trials++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// The trial slot taken at admission is free again.
	if cb.state == StateHalfOpen && cb.trials > 0 {
		cb.trials--
	}

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailureAt = time.Now()

		// A single half-open failure re-opens immediately.
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
		return
	}

	cb.successes++
	cb.failures = 0
	if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) transition(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.trials = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}
