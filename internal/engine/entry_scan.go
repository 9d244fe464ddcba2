package engine

import (
	"context"
	"errors"

	"trade-agent/internal/logger"
	"trade-agent/internal/resilience"
	"trade-agent/internal/types"
)

// RunEntryScan walks the configured universe once. Instruments with no open
// position are evaluated for a fresh entry against the previous-period
// indicator; instruments with an open position are evaluated for re-entry
// on a price drop. One bad instrument never aborts the rest of the scan.
func (e *Engine) RunEntryScan(ctx context.Context) error {
	cash, err := e.availableCash(ctx)
	if err != nil {
		return err
	}
	exposure, err := e.openExposure(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, symbol := range e.cfg.Universe {
		pos, err := e.repo.FindOpenByInstrument(ctx, e.cfg.Account, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if pos != nil {
			if err := e.evaluateReentry(ctx, pos, cash); err != nil {
				logger.ErrorWithErr(ctx, "Re-entry evaluation failed", err, "symbol", symbol)
				if firstErr == nil {
					firstErr = err
				}
			}
			continue
		}

		placed, err := e.evaluateFreshEntry(ctx, symbol, cash, exposure)
		if err != nil {
			logger.ErrorWithErr(ctx, "Entry evaluation failed", err, "symbol", symbol)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if placed != nil {
			exposure += placed.Price * float64(placed.Qty)
		}
	}
	return firstErr
}

func (e *Engine) evaluateFreshEntry(ctx context.Context, symbol string, cash, exposure float64) (*types.Order, error) {
	prev, ok := e.ind.PreviousPeriod(ctx, symbol)
	if !ok {
		// No cached snapshot for this instrument; skip rather than trade
		// on a value we never observed.
		logger.Debug(ctx, "No previous-period indicator, skipping entry", "symbol", symbol)
		return nil, nil
	}
	if prev >= e.cfg.Entry.Threshold {
		return nil, nil
	}

	ltp, err := e.lastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	qty := e.sizeEntry(cash, ltp)
	if qty <= 0 {
		logger.Debug(ctx, "Allocation too small for one share",
			"symbol", symbol, "price", ltp, "cash", cash)
		return nil, nil
	}

	cost := ltp * float64(qty)
	if exceeded, limit := e.exceedsExposure(exposure, cost, cash); exceeded {
		logger.Warn(ctx, "Entry blocked by exposure limit",
			"symbol", symbol,
			"event", "ENTRY_BLOCKED_EXPOSURE",
			"cost", cost,
			"open_exposure", exposure,
			"limit", limit)
		return nil, nil
	}

	logger.Info(ctx, "Entry signal",
		"symbol", symbol, "previous_rsi", prev, "threshold", e.cfg.Entry.Threshold,
		"price", ltp, "qty", qty)

	meta := types.OrderMeta{EntryRSI: &prev}
	order, err := e.coord.Place(ctx, types.OrderReq{
		Account:  e.cfg.Account,
		Symbol:   symbol,
		Side:     types.SideBuy,
		Kind:     types.KindMarket,
		Validity: types.ValidityDay,
		Qty:      qty,
		Tag:      "entry",
	}, types.EntryFresh, meta)
	if err != nil {
		return nil, err
	}
	// Market buys carry no limit price; track cost for the exposure sum.
	order.Price = ltp
	return order, nil
}

// evaluateReentry averages into an open position after the price drops the
// configured percentage below the last entry level. Sizing follows the same
// allocation rule as a fresh entry, and the exposure limit does not apply:
// averaging down on a held instrument is a deliberate sizing decision, not
// new exposure hunting. A failed placement is reported and left for the
// next scan, never blind-retried.
func (e *Engine) evaluateReentry(ctx context.Context, pos *types.Position, cash float64) error {
	if !e.cfg.Reentry.Enabled || !pos.IsOpen() {
		return nil
	}
	if pos.ReentryCount >= e.cfg.Reentry.MaxCount {
		return nil
	}

	ltp, err := e.lastPrice(ctx, pos.Symbol)
	if err != nil {
		return err
	}

	ref := pos.LastReentry
	if ref == 0 {
		ref = pos.InitialPrice
	}
	trigger := ref * (1 - e.cfg.Reentry.DropPct/100)
	if ltp > trigger {
		return nil
	}

	qty := e.sizeEntry(cash, ltp)
	if qty <= 0 {
		return nil
	}

	logger.Info(ctx, "Re-entry signal",
		"symbol", pos.Symbol,
		"price", ltp, "reference", ref, "trigger", trigger,
		"reentry_count", pos.ReentryCount, "max", e.cfg.Reentry.MaxCount,
		"qty", qty)

	snapshot, snapErr := e.ind.Current(ctx, pos.Symbol)
	meta := types.OrderMeta{Reentry: true}
	if snapErr == nil {
		meta.RawSnapshot = &snapshot
	}

	_, err = e.coord.Place(ctx, types.OrderReq{
		Account:  e.cfg.Account,
		Symbol:   pos.Symbol,
		Side:     types.SideBuy,
		Kind:     types.KindMarket,
		Validity: types.ValidityDay,
		Qty:      qty,
		Tag:      "reentry",
	}, types.EntryReentry, meta)
	if err != nil {
		e.notifier.Notify(ctx, "order_failed", "Re-entry failed: "+pos.Symbol, err.Error())
		return err
	}
	return nil
}

func (e *Engine) lastPrice(ctx context.Context, symbol string) (float64, error) {
	ltp, err := resilience.Call(ctx, e.exec, "ltp",
		func(ctx context.Context, tok types.SessionToken) (float64, error) {
			return e.broker.LTP(ctx, tok, symbol)
		})
	if err != nil {
		return 0, err
	}
	if ltp <= 0 {
		return 0, errors.New("no quote available")
	}
	return ltp, nil
}
