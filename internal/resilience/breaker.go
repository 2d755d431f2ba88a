// Package resilience provides the circuit breaker and retry helpers shared by
// the outbound clients (Connect Earth over HTTP, RabbitMQ over AMQP).
package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

// ErrOpen is returned without calling the protected operation while the
// breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// StateName returns a printable name for a breaker state.
func StateName(s int32) string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	MaxFailures int64
	OpenTimeout time.Duration
	// IsFailure decides which errors count against the breaker. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called after every transition.
	OnStateChange func(name string, from, to int32)
}

// DefaultBreakerConfig returns 5 failures and a 30s open timeout.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second}
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name string
	cfg  BreakerConfig

	state        int32
	failureCount int64

	mu          sync.Mutex
	lastFailure time.Time
	now         func() time.Time
}

// NewBreaker returns a closed breaker. Zero config values fall back to the defaults.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the breaker name used in metrics and logs.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() int32 { return atomic.LoadInt32(&b.state) }

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int64 { return atomic.LoadInt64(&b.failureCount) }

// IsOpen reports whether calls should be rejected. An open breaker whose
// timeout has elapsed moves to half-open and lets the next call through.
func (b *Breaker) IsOpen() bool {
	if atomic.LoadInt32(&b.state) != StateOpen {
		return false
	}
	b.mu.Lock()
	last := b.lastFailure
	b.mu.Unlock()
	if b.now().Sub(last) > b.cfg.OpenTimeout {
		b.transition(StateOpen, StateHalfOpen)
		return false
	}
	return true
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	atomic.StoreInt64(&b.failureCount, 0)
	if prev := atomic.SwapInt32(&b.state, StateClosed); prev != StateClosed {
		b.notify(prev, StateClosed)
	}
}

// RecordFailure counts a failure. A failure in half-open, or reaching
// MaxFailures, opens the breaker.
func (b *Breaker) RecordFailure() {
	n := atomic.AddInt64(&b.failureCount, 1)
	b.mu.Lock()
	b.lastFailure = b.now()
	b.mu.Unlock()

	state := atomic.LoadInt32(&b.state)
	if state == StateHalfOpen || (state == StateClosed && n >= b.cfg.MaxFailures) {
		b.transition(state, StateOpen)
	}
}

// Execute runs op unless the breaker is open and records the outcome.
// Context cancellation is not counted as a failure.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.IsOpen() {
		return ErrOpen
	}
	err := op(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
	case b.cfg.IsFailure == nil || b.cfg.IsFailure(err):
		b.RecordFailure()
	default:
		// upstream answered, e.g. a 4xx
		b.RecordSuccess()
	}
	return err
}

func (b *Breaker) transition(from, to int32) {
	if atomic.CompareAndSwapInt32(&b.state, from, to) {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to int32) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
