package engine

import (
	"context"
	"math"

	"trade-agent/internal/resilience"
	"trade-agent/internal/types"
)

// sizeEntry converts the allocation percentage of available cash into a
// whole-share quantity at the given price.
func (e *Engine) sizeEntry(cash, price float64) int {
	if price <= 0 || cash <= 0 {
		return 0
	}
	alloc := cash * e.cfg.Entry.AllocationPct / 100
	return int(alloc / price)
}

// exceedsExposure reports whether adding cost to the current open exposure
// would cross the configured ceiling, returning the ceiling for logging.
func (e *Engine) exceedsExposure(exposure, cost, cash float64) (bool, float64) {
	if e.cfg.Entry.MaxExposurePct <= 0 {
		return false, 0
	}
	limit := cash * e.cfg.Entry.MaxExposurePct / 100
	return exposure+cost > limit, limit
}

func (e *Engine) availableCash(ctx context.Context) (float64, error) {
	m, err := resilience.Call(ctx, e.exec, "margins",
		func(ctx context.Context, tok types.SessionToken) (types.Margins, error) {
			return e.broker.Margins(ctx, tok)
		})
	if err != nil {
		return 0, err
	}
	return m.AvailableCash, nil
}

// openExposure sums cost basis across the account's open positions.
func (e *Engine) openExposure(ctx context.Context) (float64, error) {
	open, err := e.repo.ListOpen(ctx, e.cfg.Account)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, p := range open {
		total += p.AvgPrice * float64(p.Qty)
	}
	return total, nil
}

func roundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
