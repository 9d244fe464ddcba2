package interfaces

import (
	"context"

	"trade-agent/internal/types"
)

// Engine owns position records and the exit/re-entry decisions around them.
type Engine interface {
	// OnOrderExecuted folds a confirmed fill into its position, creating
	// the position on the first buy fill.
	OnOrderExecuted(ctx context.Context, o *types.Order) (*types.Position, error)

	// RunOrderSync polls pending orders and feeds confirmed fills back in.
	RunOrderSync(ctx context.Context) error
	// RunExitMonitor evaluates exit triggers for open positions and
	// converts resting limit exits to market exits when triggered.
	RunExitMonitor(ctx context.Context) error
	// RunEntryScan evaluates fresh entries and re-entries for the universe.
	RunEntryScan(ctx context.Context) error
}
