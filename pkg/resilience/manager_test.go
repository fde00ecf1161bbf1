package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reconcile/pkg/circuitbreaker"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Monotonic() time.Duration { return time.Since(c.now) }

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func testConfig() Config {
	return Config{
		DatabaseFailureThreshold: 2,
		DatabaseRecoveryTimeout:  time.Minute,
		CacheFailureThreshold:    2,
		CacheRecoveryTimeout:     time.Minute,
		APIFailureThreshold:      2,
		APIRecoveryTimeout:       time.Minute,
		APIMaxRetries:            2,
		APIInitialBackoff:        time.Millisecond,
	}
}

func TestExecuteDatabase_NoRetryOnFailure(t *testing.T) {
	m := NewManager(testConfig(), &fakeClock{now: time.Now()}, noopLogger(), nil)
	attempts := 0
	wantErr := errors.New("boom")

	_, err := ExecuteDatabase(context.Background(), m, func(ctx context.Context) (string, error) {
		attempts++
		return "", wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, attempts)
}

func TestExecuteAPI_RetriesUpToMaxThenReturnsLastError(t *testing.T) {
	// Keep the API breaker closed for all three attempts: with the shared
	// threshold of 2 it would open after the second failure and deny the
	// last retry.
	cfg := testConfig()
	cfg.APIFailureThreshold = 5
	m := NewManager(cfg, &fakeClock{now: time.Now()}, noopLogger(), nil)
	attempts := 0
	wantErr := errors.New("boom")

	_, err := ExecuteAPI(context.Background(), m, func(ctx context.Context) (string, error) {
		attempts++
		return "", wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
}

func TestExecuteAPI_SucceedsAfterTransientFailure(t *testing.T) {
	m := NewManager(testConfig(), &fakeClock{now: time.Now()}, noopLogger(), nil)
	attempts := 0

	result, err := ExecuteAPI(context.Background(), m, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}

func TestExecuteDatabase_DeniesWhenBreakerOpen(t *testing.T) {
	m := NewManager(testConfig(), &fakeClock{now: time.Now()}, noopLogger(), nil)
	wantErr := errors.New("boom")
	op := func(ctx context.Context) (string, error) { return "", wantErr }

	for i := 0; i < 2; i++ {
		_, _ = ExecuteDatabase(context.Background(), m, op)
	}
	assert.Equal(t, circuitbreaker.StateOpen, m.Stats(ClassDatabase).State)

	_, err := ExecuteDatabase(context.Background(), m, op)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDependencyUnavailable)
}

func TestExecuteCache_MissIsNotReportedAsBreakerFailure(t *testing.T) {
	m := NewManager(testConfig(), &fakeClock{now: time.Now()}, noopLogger(), nil)

	for i := 0; i < 10; i++ {
		result, err := ExecuteCache(context.Background(), m, func(ctx context.Context) ([]byte, error) {
			return nil, nil // cache miss: no value, no error
		})
		require.NoError(t, err)
		assert.Nil(t, result)
	}

	assert.Equal(t, circuitbreaker.StateClosed, m.Stats(ClassCache).State)
}

func TestManager_ResetForcesBreakerClosed(t *testing.T) {
	m := NewManager(testConfig(), &fakeClock{now: time.Now()}, noopLogger(), nil)
	wantErr := errors.New("boom")
	op := func(ctx context.Context) (string, error) { return "", wantErr }

	for i := 0; i < 2; i++ {
		_, _ = ExecuteDatabase(context.Background(), m, op)
	}
	assert.Equal(t, circuitbreaker.StateOpen, m.Stats(ClassDatabase).State)

	m.Reset(context.Background(), ClassDatabase)
	assert.Equal(t, circuitbreaker.StateClosed, m.Stats(ClassDatabase).State)
}
