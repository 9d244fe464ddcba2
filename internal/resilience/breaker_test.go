package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testBreaker(threshold int, window, recovery time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker("test", BreakerSettings{
		FailureThreshold: threshold,
		Window:           window,
		Recovery:         recovery,
	})
	clock := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := testBreaker(3, time.Minute, 30*time.Second)

	for i := 0; i < 2; i++ {
		b.Failure()
		assert.True(t, b.Allow(), "breaker must stay closed below threshold")
	}
	b.Failure()
	assert.False(t, b.Allow(), "breaker must open at threshold")
}

func TestBreakerWindowExpiresFailures(t *testing.T) {
	b, clock := testBreaker(3, time.Minute, 30*time.Second)

	b.Failure()
	b.Failure()
	*clock = clock.Add(2 * time.Minute)
	b.Failure()

	assert.True(t, b.Allow(), "failures outside the window must not count")
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b, clock := testBreaker(1, time.Minute, 30*time.Second)

	b.Failure()
	assert.False(t, b.Allow())

	*clock = clock.Add(31 * time.Second)
	assert.True(t, b.Allow(), "recovery elapsed, one trial admitted")
	assert.False(t, b.Allow(), "only one trial call in half-open")
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b, clock := testBreaker(1, time.Minute, 30*time.Second)

	b.Failure()
	*clock = clock.Add(31 * time.Second)
	assert.True(t, b.Allow())

	b.Success()
	assert.True(t, b.Allow())
	assert.True(t, b.Allow(), "closed breaker admits every call")
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	b, clock := testBreaker(1, time.Minute, 30*time.Second)

	b.Failure()
	*clock = clock.Add(31 * time.Second)
	assert.True(t, b.Allow())

	b.Failure()
	assert.False(t, b.Allow(), "failed trial must reopen immediately")

	*clock = clock.Add(31 * time.Second)
	assert.True(t, b.Allow(), "a fresh recovery period admits another trial")
}
