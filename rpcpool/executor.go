package rpcpool

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	chainerrors "github.com/pushchain/chainconn/errors"
)

// DefaultRequestTimeout bounds a single attempt against one endpoint
const DefaultRequestTimeout = 10 * time.Second

// Executor runs operations against a pool, failing over across endpoints.
type Executor struct {
	requestTimeout time.Duration
	logger         zerolog.Logger
}

// NewExecutor creates an executor with the given per-attempt timeout
func NewExecutor(requestTimeout time.Duration, logger zerolog.Logger) *Executor {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Executor{
		requestTimeout: requestTimeout,
		logger:         logger.With().Str("component", "failover_executor").Logger(),
	}
}

// Execute runs fn against the pool's current client. On failure the endpoint
// is marked and fn is retried on the next untried endpoint in priority order,
// at most once per endpoint. Non-retryable chain errors (validation, lifecycle)
// and caller cancellation are returned without further attempts.
func Execute[T any](
	ctx context.Context,
	e *Executor,
	pool *ChainPool,
	operation string,
	fn func(ctx context.Context, client Client) (T, error),
) (T, error) {
	var zero T

	idx, client := pool.current()
	if client == nil {
		idx = pool.preferredIndex()
	}

	tried := make([]bool, pool.Len())
	attempts := 0
	var lastErr error

	for idx >= 0 {
		tried[idx] = true
		attempts++
		url := pool.endpoints[idx].Label

		if client == nil {
			var err error
			client, err = pool.acquire(idx, TriggerRequest, lastErr)
			if chainerrors.Is(err, chainerrors.ErrManagerStopped) {
				return zero, err
			}
			if err != nil {
				pool.observer.OnEndpointResult(pool.chainID, url, operation, 0, err)
				lastErr = err
				idx = pool.nextCandidate(idx, tried)
				continue
			}
		}

		start := time.Now()
		value, err := runAttempt(ctx, e.requestTimeout, client, fn)
		latency := time.Since(start)
		pool.observer.OnEndpointResult(pool.chainID, url, operation, latency, err)

		if err == nil {
			// Only the counters are reset. If a concurrent call rebound the
			// pool meanwhile, its binding stays: the client used here may
			// already be closed and is never re-adopted.
			pool.markSuccess(idx, latency, nil, TriggerRequest)
			return value, nil
		}

		if isCallerError(err) {
			return zero, err
		}

		if ctx.Err() != nil {
			pool.markFailure(idx, err)
			return zero, chainerrors.NewTimeoutError(pool.chainID, operation+" cancelled", ctx.Err()).
				WithContext("url", url)
		}

		lastErr = chainerrors.NewEndpointError(pool.chainID, url, err)
		pool.markFailure(idx, lastErr)

		e.logger.Warn().
			Str("chain_id", pool.chainID).
			Str("operation", operation).
			Str("url", url).
			Dur("latency", latency).
			Err(err).
			Msg("request failed, trying next endpoint")

		idx = pool.nextCandidate(idx, tried)
		client = nil
	}

	pool.observer.OnPoolExhausted(pool.chainID, operation, attempts)
	e.logger.Error().
		Str("chain_id", pool.chainID).
		Str("operation", operation).
		Int("endpoints_tried", attempts).
		Err(lastErr).
		Msg("all endpoints failed")

	return zero, chainerrors.NewPoolExhaustedError(pool.chainID, attempts, lastErr).
		WithContext("operation", operation)
}

// isCallerError reports whether the client rejected the call itself, so any
// other endpoint would answer the same way.
func isCallerError(err error) bool {
	var chainErr *chainerrors.ChainError
	return chainerrors.As(err, &chainErr) && !chainErr.IsRetryable()
}

type attemptResult[T any] struct {
	value T
	err   error
}

// runAttempt runs fn under timeout. A client that ignores its context is
// abandoned when the deadline passes.
func runAttempt[T any](ctx context.Context, timeout time.Duration, client Client, fn func(context.Context, Client) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult[T], 1)
	go func() {
		value, err := fn(attemptCtx, client)
		done <- attemptResult[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-attemptCtx.Done():
		var zero T
		return zero, attemptCtx.Err()
	}
}
