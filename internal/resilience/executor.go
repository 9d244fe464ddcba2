// Package resilience wraps every outbound broker and data call with retry
// and circuit-breaker policy. Transient failures are absorbed up to the
// policy budget; authentication failures invalidate the session and get
// exactly one retry against a fresh token; everything else propagates.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/metrics"
	"trade-agent/internal/types"
)

type Executor struct {
	account  string
	policy   Policy
	breakerS BreakerSettings
	guard    interfaces.SessionGuard

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewExecutor(account string, policy Policy, breakerS BreakerSettings, guard interfaces.SessionGuard) *Executor {
	return &Executor{
		account:  account,
		policy:   policy,
		breakerS: breakerS,
		guard:    guard,
		breakers: make(map[string]*Breaker),
	}
}

func (e *Executor) breaker(endpoint string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[endpoint]
	if !ok {
		b = NewBreaker(endpoint, e.breakerS)
		e.breakers[endpoint] = b
	}
	return b
}

// Call runs one authenticated external call against the named logical
// endpoint under the executor's retry and breaker policy. fn receives a
// usable session token; the executor owns the renewal-on-auth-failure
// dance so callers never see a stale token error twice.
func Call[T any](ctx context.Context, e *Executor, endpoint string, fn func(ctx context.Context, tok types.SessionToken) (T, error)) (T, error) {
	var zero T

	br := e.breaker(endpoint)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.BaseDelay
	bo.Multiplier = e.policy.Multiplier
	bo.MaxInterval = e.policy.MaxDelay

	attempt := 0
	operation := func() (T, error) {
		if !br.Allow() {
			return zero, backoff.Permanent(types.Transient(endpoint, types.ErrBreakerOpen))
		}

		attempt++
		if attempt > 1 {
			metrics.Retries.WithLabelValues(endpoint).Inc()
		}

		tok, err := e.guard.Get(ctx, e.account)
		if err != nil {
			// Renewal already failed inside the guard; retrying the
			// call cannot help.
			return zero, backoff.Permanent(err)
		}

		v, err := fn(ctx, tok)
		if err == nil {
			br.Success()
			return v, nil
		}

		switch {
		case types.IsAuth(err):
			return retryWithFreshSession(ctx, e, br, endpoint, fn)
		case e.policy.Retryable != nil && e.policy.Retryable(err):
			br.Failure()
			return zero, err
		default:
			// Validation and business-rule failures are never retried.
			return zero, backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "Retrying external call",
			"endpoint", endpoint,
			"error", err,
			"backoff", wait,
		)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(e.policy.MaxAttempts)),
		backoff.WithNotify(notify))
}

// retryWithFreshSession handles an authentication-class failure: invalidate
// the held token, obtain a fresh one, and retry the call exactly once.
func retryWithFreshSession[T any](ctx context.Context, e *Executor, br *Breaker, endpoint string, fn func(ctx context.Context, tok types.SessionToken) (T, error)) (T, error) {
	var zero T

	logger.Warn(ctx, "Authentication failure, renewing session and retrying once", "endpoint", endpoint)
	e.guard.Invalidate(e.account)

	tok, err := e.guard.Get(ctx, e.account)
	if err != nil {
		return zero, backoff.Permanent(err)
	}

	v, err := fn(ctx, tok)
	if err == nil {
		br.Success()
		return v, nil
	}

	br.Failure()
	return zero, backoff.Permanent(err)
}
