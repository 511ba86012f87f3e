package resilience

import (
	"context"
	"time"
)

// Guard applies the per-call policy for one backend: a timeout on every
// attempt, optional retry, optional circuit breaker, and classification of
// failures into BackendTimeoutError and BackendUnavailableError.
type Guard struct {
	backend string
	timeout time.Duration
	retry   RetryConfig
	breaker *CircuitBreaker
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithRetry enables adapter-level retries.
func WithRetry(cfg RetryConfig) GuardOption {
	return func(g *Guard) { g.retry = cfg }
}

// WithCircuitBreaker attaches a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) GuardOption {
	return func(g *Guard) { g.breaker = cb }
}

// NewGuard creates a Guard. A zero timeout leaves calls bounded only by the
// caller's context.
func NewGuard(backend string, timeout time.Duration, opts ...GuardOption) *Guard {
	g := &Guard{
		backend: backend,
		timeout: timeout,
		retry:   DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(g)
	}
	if g.retry.OnRetry == nil && g.retry.MaxAttempts > 1 {
		g.retry.OnRetry = RetryLogger(backend, "call")
	}
	return g
}

// Backend returns the backend name the guard reports in errors.
func (g *Guard) Backend() string { return g.backend }

// Timeout returns the per-attempt time bound.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// Call runs fn under g's policy.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
		var zero T
		if g.breaker != nil {
			if err := g.breaker.Allow(); err != nil {
				return zero, Classify(g.backend, g.timeout, err)
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if g.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		defer cancel()

		val, err := fn(callCtx)
		if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = &BackendTimeoutError{Backend: g.backend, Timeout: g.timeout, Err: err}
		}
		if g.breaker != nil {
			g.breaker.Record(err)
		}
		if err != nil {
			return zero, Classify(g.backend, g.timeout, err)
		}
		return val, nil
	})
}
