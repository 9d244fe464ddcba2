package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-agent/internal/types"
)

type stubGuard struct {
	gets        int
	invalidated int
}

func (s *stubGuard) Get(ctx context.Context, account string) (types.SessionToken, error) {
	s.gets++
	return types.SessionToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubGuard) Invalidate(account string) {
	s.invalidated++
}

func testExecutor(maxAttempts int) (*Executor, *stubGuard) {
	guard := &stubGuard{}
	policy := Policy{
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Millisecond,
		MaxAttempts: maxAttempts,
		Retryable:   types.IsTransient,
	}
	return NewExecutor("AB1234", policy, DefaultBreakerSettings(), guard), guard
}

func TestCallSucceedsFirstTry(t *testing.T) {
	e, _ := testExecutor(3)

	calls := 0
	v, err := Call(context.Background(), e, "ltp", func(ctx context.Context, tok types.SessionToken) (float64, error) {
		calls++
		return 42.5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)
	assert.Equal(t, 1, calls)
}

func TestCallRetriesTransientUpToBudget(t *testing.T) {
	e, _ := testExecutor(3)

	calls := 0
	_, err := Call(context.Background(), e, "ltp", func(ctx context.Context, tok types.SessionToken) (float64, error) {
		calls++
		return 0, types.Transient("ltp", errors.New("gateway timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "transient failures retry up to the attempt budget")
	assert.True(t, types.IsTransient(err))
}

func TestCallTransientRecovers(t *testing.T) {
	e, _ := testExecutor(3)

	calls := 0
	v, err := Call(context.Background(), e, "ltp", func(ctx context.Context, tok types.SessionToken) (float64, error) {
		calls++
		if calls < 3 {
			return 0, types.Transient("ltp", errors.New("gateway timeout"))
		}
		return 7.0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, 3, calls)
}

func TestCallDoesNotRetryRejection(t *testing.T) {
	e, _ := testExecutor(3)

	calls := 0
	_, err := Call(context.Background(), e, "place_order", func(ctx context.Context, tok types.SessionToken) (string, error) {
		calls++
		return "", types.Rejected("place_order", errors.New("insufficient funds"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "business-rule rejections are never retried")
	assert.True(t, types.IsRejected(err))
}

func TestCallAuthFailureRenewsOnce(t *testing.T) {
	e, guard := testExecutor(3)

	calls := 0
	v, err := Call(context.Background(), e, "margins", func(ctx context.Context, tok types.SessionToken) (string, error) {
		calls++
		if calls == 1 {
			return "", types.AuthFailure("margins", errors.New("token expired"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, guard.invalidated, "auth failure must invalidate the session")
}

func TestCallAuthFailureTwiceIsPermanent(t *testing.T) {
	e, guard := testExecutor(3)

	calls := 0
	_, err := Call(context.Background(), e, "margins", func(ctx context.Context, tok types.SessionToken) (string, error) {
		calls++
		return "", types.AuthFailure("margins", errors.New("token expired"))
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls, "exactly one fresh-session retry, then give up")
	assert.Equal(t, 1, guard.invalidated)
}

func TestCallFailsFastWhenBreakerOpen(t *testing.T) {
	e, _ := testExecutor(1)

	// Trip the endpoint's breaker.
	for i := 0; i < DefaultBreakerSettings().FailureThreshold; i++ {
		_, _ = Call(context.Background(), e, "historical", func(ctx context.Context, tok types.SessionToken) (int, error) {
			return 0, types.Transient("historical", errors.New("connection refused"))
		})
	}

	calls := 0
	_, err := Call(context.Background(), e, "historical", func(ctx context.Context, tok types.SessionToken) (int, error) {
		calls++
		return 1, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBreakerOpen)
	assert.Equal(t, 0, calls, "open breaker must fail without a network attempt")
}

func TestBreakersArePerEndpoint(t *testing.T) {
	e, _ := testExecutor(1)

	for i := 0; i < DefaultBreakerSettings().FailureThreshold; i++ {
		_, _ = Call(context.Background(), e, "historical", func(ctx context.Context, tok types.SessionToken) (int, error) {
			return 0, types.Transient("historical", errors.New("connection refused"))
		})
	}

	v, err := Call(context.Background(), e, "ltp", func(ctx context.Context, tok types.SessionToken) (int, error) {
		return 9, nil
	})
	require.NoError(t, err, "an open breaker on one endpoint must not affect others")
	assert.Equal(t, 9, v)
}
