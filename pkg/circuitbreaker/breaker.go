// Package circuitbreaker implements a per-dependency circuit breaker:
// closed/open/half-open state tracking with atomic, serialized
// transitions, used by the Resilience Manager to guard database, cache,
// and external API calls.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config configures a Breaker's thresholds.
type Config struct {
	// FailureThreshold (F) is the number of consecutive failures in
	// closed that trips the breaker open.
	FailureThreshold int
	// SuccessThreshold (S) is the number of consecutive successes in
	// half_open that closes the breaker.
	SuccessThreshold int
	// Timeout (T) is how long the breaker stays open before the next
	// admission check moves it to half_open, where requests pass again.
	Timeout time.Duration
}

// Stats is the exposed snapshot of a Breaker's state.
type Stats struct {
	State           State
	FailureCount    int
	SuccessCount    int
	TotalRequests   int64
	LastStateChange time.Time
	LastFailure     time.Time
}

// Breaker tracks failures for one dependency and admits or denies calls
// accordingly. All mutation is serialized behind a single mutex; there is
// no lock-free fast path because admission always needs a consistent read
// of state plus the open-timeout clock.
type Breaker struct {
	name   string
	cfg    Config
	clock  core.Clock
	logger ectologger.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	totalRequests   int64
	lastStateChange time.Time
	lastFailure     time.Time
}

// New creates a Breaker named name (used only for logging/metrics
// labels), with the given thresholds.
func New(name string, cfg Config, clock core.Clock, logger ectologger.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Breaker{
		name:            name,
		cfg:             cfg,
		clock:           clock,
		logger:          logger,
		state:           StateClosed,
		lastStateChange: clock.Now(),
	}
}

// Allow reports whether a request may proceed right now, transitioning
// open->half_open as a side effect when the timeout has elapsed. Callers
// that are allowed must report the outcome via Success or Failure.
func (b *Breaker) Allow(ctx context.Context) bool {
	_, span := tracing.StartSpan(ctx, "circuitbreaker.Breaker.Allow")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.clock.Now().Sub(b.lastStateChange) >= b.cfg.Timeout {
			b.transitionLocked(ctx, StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Success records a successful call. In half_open, S consecutive
// successes close the breaker; in closed, it resets the failure streak.
func (b *Breaker) Success(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.failureCount = 0
			b.successCount = 0
			b.transitionLocked(ctx, StateClosed)
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// Failure records a failed call. In closed, F consecutive failures opens
// the breaker. In half_open, any failure reopens it immediately and
// resets the success streak.
func (b *Breaker) Failure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transitionLocked(ctx, StateOpen)
		}
	case StateHalfOpen:
		b.successCount = 0
		b.transitionLocked(ctx, StateOpen)
	}
}

// transitionLocked must be called with mu held. It logs every transition,
// per §4.7 ("every state transition is logged").
func (b *Breaker) transitionLocked(ctx context.Context, to State) {
	from := b.state
	b.state = to
	b.lastStateChange = b.clock.Now()
	if to == StateOpen || to == StateClosed {
		b.failureCount = 0
	}
	if b.logger != nil {
		b.logger.WithContext(ctx).WithFields(map[string]any{
			"breaker": b.name,
			"from":    from,
			"to":      to,
		}).Info("circuit breaker state transition")
	}
}

// Stats returns a snapshot of the breaker's current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		TotalRequests:   b.totalRequests,
		LastStateChange: b.lastStateChange,
		LastFailure:     b.lastFailure,
	}
}

// Reset forces the breaker closed and zeroes every counter.
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.successCount = 0
	b.transitionLocked(ctx, StateClosed)
}
