package engineobs

import (
	"context"
	"time"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/trace"
	"trade-agent/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) OnOrderExecuted(ctx context.Context, o *types.Order) (*types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "engine.OnOrderExecuted")
	defer span.End()

	start := time.Now()

	pos, err := oe.engine.OnOrderExecuted(ctx, o)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Fill processing failed", err,
			"order_id", o.BrokerID,
			"symbol", o.Symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	if pos != nil {
		logger.InfoSkip(ctx, 1, "Fill folded into position",
			"order_id", o.BrokerID,
			"symbol", o.Symbol,
			"qty", pos.Qty,
			"avg", pos.AvgPrice,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return pos, nil
}

func (oe *observableEngine) RunOrderSync(ctx context.Context) error {
	return oe.run(ctx, "engine.RunOrderSync", "Order sync", oe.engine.RunOrderSync)
}

func (oe *observableEngine) RunExitMonitor(ctx context.Context) error {
	return oe.run(ctx, "engine.RunExitMonitor", "Exit monitor", oe.engine.RunExitMonitor)
}

func (oe *observableEngine) RunEntryScan(ctx context.Context) error {
	return oe.run(ctx, "engine.RunEntryScan", "Entry scan", oe.engine.RunEntryScan)
}

func (oe *observableEngine) run(ctx context.Context, span string, name string, fn func(context.Context) error) error {
	ctx, sp := trace.StartSpan(ctx, span)
	defer sp.End()

	start := time.Now()

	logger.InfoSkip(ctx, 2, name+" starting")

	if err := fn(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 2, name+" failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.InfoSkip(ctx, 2, name+" completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}
