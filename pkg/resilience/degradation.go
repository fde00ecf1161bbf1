package resilience

import (
	"context"

	"github.com/Gobusters/ectologger"
)

// WithFallback runs op and returns its result, or fallback if op errors.
// The caller supplies the fallback value; the manager does not decide
// policy, only offers the utility.
func WithFallback[T any](ctx context.Context, logger ectologger.Logger, op func(ctx context.Context) (T, error), fallback T) T {
	result, err := op(ctx)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("operation failed, using fallback")
		return fallback
	}
	return result
}

// WithDefault runs op and returns its result, or the zero value of T if
// op errors.
func WithDefault[T any](ctx context.Context, logger ectologger.Logger, op func(ctx context.Context) (T, error)) T {
	var zero T
	return WithFallback(ctx, logger, op, zero)
}

// WithCached runs op; on failure it falls back to a value fetched from
// cache by cacheGet, and on success it writes through via cacheSet so a
// later failure has something to fall back to.
func WithCached[T any](ctx context.Context, logger ectologger.Logger, op func(ctx context.Context) (T, error), cacheGet func(ctx context.Context) (T, bool), cacheSet func(ctx context.Context, value T)) (T, error) {
	result, err := op(ctx)
	if err == nil {
		if cacheSet != nil {
			cacheSet(ctx, result)
		}
		return result, nil
	}

	logger.WithContext(ctx).WithError(err).Warn("operation failed, attempting cached fallback")
	if cacheGet != nil {
		if cached, ok := cacheGet(ctx); ok {
			return cached, nil
		}
	}
	var zero T
	return zero, err
}
