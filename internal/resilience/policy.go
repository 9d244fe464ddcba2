package resilience

import (
	"time"

	"trade-agent/internal/store"
	"trade-agent/internal/types"
)

// Policy is the retry schedule consumed by the executor: exponential backoff
// from BaseDelay by Multiplier, capped at MaxDelay, at most MaxAttempts
// calls. Only transient-class failures are retried.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
	Retryable   func(error) bool
}

// DefaultPolicy mirrors the config defaults: 1s base, x2, 30s cap, 3 attempts.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 3,
		Retryable:   types.IsTransient,
	}
}

// PolicyFromConfig builds the retry policy from the loaded configuration.
func PolicyFromConfig(cfg *store.Config) Policy {
	return Policy{
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		MaxAttempts: cfg.Retry.MaxAttempts,
		Retryable:   types.IsTransient,
	}
}

// BreakerSettings bound cascading load on a degraded endpoint.
type BreakerSettings struct {
	FailureThreshold int
	Window           time.Duration
	Recovery         time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		Window:           time.Minute,
		Recovery:         30 * time.Second,
	}
}

func BreakerFromConfig(cfg *store.Config) BreakerSettings {
	return BreakerSettings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           time.Duration(cfg.Breaker.WindowSeconds) * time.Second,
		Recovery:         time.Duration(cfg.Breaker.RecoverySeconds) * time.Second,
	}
}
