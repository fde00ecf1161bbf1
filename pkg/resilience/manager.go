// Package resilience composes one circuit breaker per dependency class
// (database, cache, external API) with retry-with-backoff for the API
// class, giving bounded Record Store, Cache, and external calls a single
// guarded entry point. Opening a Record Store Stream is not routed
// through it.
package resilience

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/circuitbreaker"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// DependencyClass names one of the three guarded dependency classes.
type DependencyClass string

const (
	ClassDatabase DependencyClass = "database"
	ClassCache    DependencyClass = "cache"
	ClassAPI      DependencyClass = "api"
)

// Config holds per-class thresholds and the API retry policy.
type Config struct {
	DatabaseFailureThreshold int
	DatabaseRecoveryTimeout  time.Duration
	CacheFailureThreshold    int
	CacheRecoveryTimeout     time.Duration
	APIFailureThreshold      int
	APIRecoveryTimeout       time.Duration
	APIMaxRetries            int
	APIInitialBackoff        time.Duration
}

// DefaultConfig returns the §4.8 defaults: database F=5 τ=30s; cache F=10
// τ=15s; API F=5 τ=60s with up to 3 retries starting at 100ms.
func DefaultConfig() Config {
	return Config{
		DatabaseFailureThreshold: 5,
		DatabaseRecoveryTimeout:  30 * time.Second,
		CacheFailureThreshold:    10,
		CacheRecoveryTimeout:     15 * time.Second,
		APIFailureThreshold:      5,
		APIRecoveryTimeout:       60 * time.Second,
		APIMaxRetries:            3,
		APIInitialBackoff:        100 * time.Millisecond,
	}
}

// Manager binds a circuit breaker to each dependency class.
type Manager struct {
	cfg     Config
	clock   core.Clock
	logger  ectologger.Logger
	metrics core.MetricSink

	database *circuitbreaker.Breaker
	cache    *circuitbreaker.Breaker
	api      *circuitbreaker.Breaker
}

// NewManager creates a Manager with one breaker per dependency class. A
// nil metrics sink is replaced with a no-op one so call sites never need
// to check.
func NewManager(cfg Config, clock core.Clock, logger ectologger.Logger, metrics core.MetricSink) *Manager {
	if metrics == nil {
		metrics = core.NoopMetricSink{}
	}
	return &Manager{
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		database: circuitbreaker.New("database", circuitbreaker.Config{
			FailureThreshold: cfg.DatabaseFailureThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.DatabaseRecoveryTimeout,
		}, clock, logger),
		cache: circuitbreaker.New("cache", circuitbreaker.Config{
			FailureThreshold: cfg.CacheFailureThreshold,
			SuccessThreshold: 3,
			Timeout:          cfg.CacheRecoveryTimeout,
		}, clock, logger),
		api: circuitbreaker.New("api", circuitbreaker.Config{
			FailureThreshold: cfg.APIFailureThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.APIRecoveryTimeout,
		}, clock, logger),
	}
}

// Retryable is a first-class retry abstraction: it must return a fresh
// operation on each attempt (never replay a consumed one), per the
// Design Note replacing the source's nested retry-inside-circuit-breaker
// closures with small, composable policies.
type Retryable[T any] func(ctx context.Context) (T, error)

// ExecuteDatabase runs op through the database breaker with no retries:
// database failures are expected to be surfaced and checkpointed by the
// caller, not retried transparently.
func ExecuteDatabase[T any](ctx context.Context, m *Manager, op Retryable[T]) (T, error) {
	return m.execute(ctx, ClassDatabase, m.database, op, 0, 0)
}

// ExecuteCache runs op through the cache breaker with no retries. Callers
// must treat a returned error as "cache unavailable" and degrade
// gracefully rather than fail the job.
func ExecuteCache[T any](ctx context.Context, m *Manager, op Retryable[T]) (T, error) {
	return m.execute(ctx, ClassCache, m.cache, op, 0, 0)
}

// ExecuteAPI runs op through the API breaker with up to APIMaxRetries
// exponential-backoff retries (each retry is a fresh admission check
// against the same breaker — a denied admission stops the retry loop
// immediately rather than counting as a failed attempt).
func ExecuteAPI[T any](ctx context.Context, m *Manager, op Retryable[T]) (T, error) {
	return m.execute(ctx, ClassAPI, m.api, op, m.cfg.APIMaxRetries, m.cfg.APIInitialBackoff)
}

func (m *Manager) execute[T any](ctx context.Context, class DependencyClass, breaker *circuitbreaker.Breaker, op Retryable[T], maxRetries int, initialBackoff time.Duration) (T, error) {
	ctx, span := tracing.StartSpan(ctx, "resilience.Manager.execute."+string(class))
	defer span.End()

	var zero T
	delay := initialBackoff

	for attempt := 0; ; attempt++ {
		m.metrics.IncCounter("circuit_breaker_requests", map[string]string{"class": string(class)})

		if !breaker.Allow(ctx) {
			m.metrics.IncCounter("circuit_breaker_rejections", map[string]string{"class": string(class)})
			return zero, core.ErrDependencyUnavailable
		}

		result, err := op(ctx)
		if err == nil {
			breaker.Success(ctx)
			m.metrics.IncCounter("circuit_breaker_successes", map[string]string{"class": string(class)})
			return result, nil
		}

		breaker.Failure(ctx)
		m.metrics.IncCounter("circuit_breaker_failures", map[string]string{"class": string(class)})

		if attempt >= maxRetries {
			return zero, err
		}

		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"class":   class,
			"attempt": attempt + 1,
		}).Warn("dependency call failed, retrying")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Stats returns the current Stats of the named dependency class's
// breaker.
func (m *Manager) Stats(class DependencyClass) circuitbreaker.Stats {
	return m.breakerFor(class).Stats()
}

// Reset forces the named dependency class's breaker closed.
func (m *Manager) Reset(ctx context.Context, class DependencyClass) {
	m.breakerFor(class).Reset(ctx)
}

func (m *Manager) breakerFor(class DependencyClass) *circuitbreaker.Breaker {
	switch class {
	case ClassCache:
		return m.cache
	case ClassAPI:
		return m.api
	default:
		return m.database
	}
}
