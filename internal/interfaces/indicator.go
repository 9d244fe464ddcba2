package interfaces

import (
	"context"

	"trade-agent/internal/types"
)

// IndicatorSource computes the oscillator series for an instrument. An empty
// series means "unavailable" and triggers the documented fallback behavior.
type IndicatorSource interface {
	Series(ctx context.Context, symbol string, period, lookback int) ([]types.IndicatorPoint, error)

	// PreviousPeriod returns the cached value as of the prior completed
	// trading session. ok is false when no value was cached.
	PreviousPeriod(ctx context.Context, symbol string) (value float64, ok bool)

	// Current returns the latest real-time value.
	Current(ctx context.Context, symbol string) (float64, error)
}
