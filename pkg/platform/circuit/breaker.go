// Package circuit wraps sony/gobreaker with the project's sentinel errors so
// callers can treat an open circuit like any other unavailable dependency.
package circuit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"chatline/pkg/platform/sentinel"
)

// State mirrors the breaker state for callers that should not import gobreaker.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

// Breaker trips after a run of consecutive failures and fails fast while open.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	failureThreshold uint32
	halfOpenRequests uint32
	openTimeout      time.Duration
	logger           *slog.Logger
	onStateChange    func(from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failures that open the circuit.
func WithFailureThreshold(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithHalfOpenRequests sets how many trial calls are let through while half-open.
// The same number of successes closes the circuit.
func WithHalfOpenRequests(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.halfOpenRequests = n
		}
	}
}

// WithOpenTimeout sets how long the circuit stays open before probing.
func WithOpenTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.openTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithStateChangeHook registers a callback, typically a metrics gauge update.
func WithStateChangeHook(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a breaker. Defaults: 5 consecutive failures, 1 half-open probe,
// 30s open timeout.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		halfOpenRequests: 1,
		openTimeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: b.halfOpenRequests,
		Timeout:     b.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.logger != nil {
				b.logger.Warn("circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
			if b.onStateChange != nil {
				b.onStateChange(convert(from), convert(to))
			}
		},
	})
	return b
}

// Execute runs fn through the breaker. While the circuit is open, or the
// half-open probe budget is spent, it returns an error wrapping
// sentinel.ErrUnavailable without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit %s: %w: %w", b.name, err, sentinel.ErrUnavailable)
	}
	return err
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State { return convert(b.cb.State()) }

func (b *Breaker) IsOpen() bool { return b.cb.State() == gobreaker.StateOpen }

func convert(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
