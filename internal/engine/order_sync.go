package engine

import (
	"context"

	"trade-agent/internal/logger"
	"trade-agent/internal/types"
)

// RunOrderSync polls every non-terminal order for the account and feeds
// confirmed fills into position accounting. Orders reaching EXECUTED are
// folded exactly once: the poll moves them terminal, so the next sync pass
// no longer sees them.
func (e *Engine) RunOrderSync(ctx context.Context) error {
	pending, err := e.repo.FindPendingByAccount(ctx, e.cfg.Account)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	logger.Debug(ctx, "Syncing pending orders", "count", len(pending))

	var firstErr error
	for _, o := range pending {
		status, err := e.coord.PollStatus(ctx, o.BrokerID)
		if err != nil {
			logger.ErrorWithErr(ctx, "Order status poll failed", err,
				"order_id", o.BrokerID, "symbol", o.Symbol)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if status != types.StatusExecuted {
			continue
		}

		filled, err := e.repo.FindOrder(ctx, o.BrokerID)
		if err != nil || filled == nil {
			logger.ErrorWithErr(ctx, "Could not reload executed order", err,
				"order_id", o.BrokerID)
			continue
		}
		if _, err := e.OnOrderExecuted(ctx, filled); err != nil {
			// The order is already terminal, so this fill will not come
			// around again on the next pass.
			logger.ErrorWithErr(ctx, "Could not fold fill into position", err,
				"order_id", o.BrokerID, "symbol", o.Symbol)
			e.notifier.Notify(ctx, "escalation", "Unreconciled fill: "+o.Symbol,
				"order "+o.BrokerID+" executed but position update failed: "+err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		// A buy fill needs its protecting target exit resting at the
		// broker before the monitor has anything to convert.
		if filled.Side == types.SideBuy {
			e.placeTargetExit(ctx, filled)
		}
	}
	return firstErr
}

// placeTargetExit places the limit sell protecting a freshly filled buy at
// the configured target above the fill price. Skipped when the instrument
// already carries a resting sell, as after averaging in on a re-entry.
func (e *Engine) placeTargetExit(ctx context.Context, buy *types.Order) {
	existing, err := e.repo.FindOpenSellByInstrument(ctx, buy.Account, buy.Symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Could not check for resting exit", err, "symbol", buy.Symbol)
		return
	}
	if existing != nil {
		return
	}

	pos, err := e.repo.FindOpenByInstrument(ctx, buy.Account, buy.Symbol)
	if err != nil || pos == nil {
		return
	}

	target := roundToTick(pos.AvgPrice*(1+e.cfg.Entry.TargetPct/100), 0.05)
	_, err = e.coord.Place(ctx, types.OrderReq{
		Account:  buy.Account,
		Symbol:   buy.Symbol,
		Side:     types.SideSell,
		Kind:     types.KindLimit,
		Validity: types.ValidityDay,
		Qty:      pos.Qty,
		Price:    target,
		Tag:      "target-exit",
	}, buy.Entry, buy.Meta)
	if err != nil {
		logger.ErrorWithErr(ctx, "Could not place target exit", err,
			"symbol", buy.Symbol, "target", target)
		e.notifier.Notify(ctx, "escalation", "Unprotected position: "+buy.Symbol,
			"buy filled but target exit placement failed: "+err.Error())
		return
	}
	logger.Info(ctx, "Target exit placed",
		"symbol", buy.Symbol, "qty", pos.Qty, "target", target)
}
