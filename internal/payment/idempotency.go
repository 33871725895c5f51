package payment

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/pkg/metrics"
)

const (
	// idempotencyLockTTL bounds how long a single in-flight execution can
	// hold the lock before a retry is allowed to race it again (spec §4.2).
	idempotencyLockTTL = 30 * time.Second
	// idempotencyResultTTL is how long a completed result stays cached and
	// replayable without re-invoking the wrapped use case.
	idempotencyResultTTL = 24 * time.Hour
)

// WithIdempotency implements the engine from spec §4.2: a cached result
// short-circuits fn entirely; otherwise a set-if-absent lock makes fn
// single-flight per key across the fleet. The lock-acquire check is the sole
// atomic operation guarding mutual exclusion — no double-check after
// acquiring is needed, because GetResult above has already checked once and
// fn runs under the lock's mutual exclusion.
func WithIdempotency[T any](ctx context.Context, cache IdempotencyCache, logger *zap.Logger, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok, err := cache.GetResult(ctx, key); err != nil {
		return zero, Wrap(KindInternal, err, "idempotency: get cached result for %s", key)
	} else if ok {
		var result T
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return zero, Wrap(KindInternal, err, "idempotency: decode cached result for %s", key)
		}
		logger.Debug("idempotency hit, returning cached result", zap.String("key", key))
		metrics.IdempotencyHits.WithLabelValues("hit").Inc()
		return result, nil
	}

	acquired, err := cache.AcquireLock(ctx, key, idempotencyLockTTL)
	if err != nil {
		return zero, Wrap(KindInternal, err, "idempotency: acquire lock for %s", key)
	}
	if !acquired {
		metrics.IdempotencyHits.WithLabelValues("in_progress").Inc()
		return zero, NewError(KindInProgress, "idempotency: operation already in progress for key %s", key)
	}

	result, fnErr := fn(ctx)
	if fnErr != nil {
		// Result is not cached on failure: a retry with the same key must be
		// able to legitimately execute again once the lock expires or is
		// released here.
		if err := cache.ReleaseLock(ctx, key); err != nil {
			logger.Warn("idempotency: failed to release lock after error", zap.String("key", key), zap.Error(err))
		}
		return zero, fnErr
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		if relErr := cache.ReleaseLock(ctx, key); relErr != nil {
			logger.Warn("idempotency: failed to release lock after encode error", zap.String("key", key), zap.Error(relErr))
		}
		return zero, Wrap(KindInternal, err, "idempotency: encode result for %s", key)
	}

	if err := cache.SetResult(ctx, key, string(encoded), idempotencyResultTTL); err != nil {
		logger.Warn("idempotency: failed to cache result", zap.String("key", key), zap.Error(err))
	}
	if err := cache.ReleaseLock(ctx, key); err != nil {
		logger.Warn("idempotency: failed to release lock after success", zap.String("key", key), zap.Error(err))
	}

	metrics.IdempotencyHits.WithLabelValues("executed").Inc()
	return result, nil
}
