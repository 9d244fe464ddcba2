package engine

import (
	"context"
	"errors"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/tradelog"
	"trade-agent/internal/types"
)

// exitDecision records why the monitor did or did not trigger an exit.
type exitDecision struct {
	Exit        bool
	PreviousRSI float64
	PreviousOK  bool
	CurrentRSI  float64
	CurrentUsed bool
	Reason      string
}

// RunExitMonitor evaluates every open position against the exit threshold
// and converts the resting limit exit to a market exit when triggered.
func (e *Engine) RunExitMonitor(ctx context.Context) error {
	open, err := e.repo.ListOpen(ctx, e.cfg.Account)
	if err != nil {
		return err
	}

	var firstErr error
	for _, pos := range open {
		if err := e.monitorPosition(ctx, pos); err != nil {
			logger.ErrorWithErr(ctx, "Exit monitoring failed", err, "symbol", pos.Symbol)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Engine) monitorPosition(ctx context.Context, pos *types.Position) error {
	d := e.decideExit(ctx, pos.Symbol)
	if !d.Exit {
		logger.Debug(ctx, "No exit trigger",
			"symbol", pos.Symbol, "previous_rsi", d.PreviousRSI, "previous_ok", d.PreviousOK,
			"threshold", e.cfg.Exit.Threshold)
		return nil
	}

	logger.Info(ctx, "Exit trigger",
		"symbol", pos.Symbol, "reason", d.Reason,
		"previous_rsi", d.PreviousRSI, "current_rsi", d.CurrentRSI,
		"current_used", d.CurrentUsed, "threshold", e.cfg.Exit.Threshold)

	sell, err := e.repo.FindOpenSellByInstrument(ctx, e.cfg.Account, pos.Symbol)
	if err != nil {
		return err
	}
	if sell == nil {
		// The target exit never landed, or a fill already consumed it.
		// Nothing resting to convert; the sync pass will reconcile.
		logger.Warn(ctx, "Exit triggered but no resting sell to convert",
			"symbol", pos.Symbol)
		return nil
	}

	outcome, replacement, err := e.coord.ConvertToMarketExit(ctx, sell.BrokerID)
	if err != nil {
		// A dangling exit has already been escalated by the coordinator.
		// Do not retry here: a second replacement attempt risks a
		// duplicate sell.
		var dangling *types.DanglingExitError
		if errors.As(err, &dangling) {
			logger.Error(ctx, "Position left unprotected, manual intervention required",
				"symbol", pos.Symbol, "order_id", dangling.OrderID)
		}
		return err
	}

	detail := string(outcome)
	if replacement != nil && outcome == interfaces.ConvertReplaced {
		detail += " by " + replacement.BrokerID
	}
	_ = tradelog.AppendEvent(tradelog.EventEntry{
		Symbol:  pos.Symbol,
		OrderID: sell.BrokerID,
		Event:   "EXIT_TRIGGER",
		Detail:  d.Reason + ", " + detail,
	})
	return nil
}

// decideExit applies the exit rule. The previous completed period is
// authoritative: a position is exited when that value sits at or above the
// threshold. The realtime value only decides when no previous-period value
// exists, and that substitution is logged as a warning. With the realtime
// override enabled, a realtime value past the threshold also exits even
// when the previous period says hold.
func (e *Engine) decideExit(ctx context.Context, symbol string) exitDecision {
	d := exitDecision{}
	d.PreviousRSI, d.PreviousOK = e.ind.PreviousPeriod(ctx, symbol)

	if d.PreviousOK {
		if d.PreviousRSI >= e.cfg.Exit.Threshold {
			d.Exit = true
			d.Reason = "previous-period indicator at threshold"
			return d
		}
		if !e.cfg.Exit.RealtimeOverride {
			return d
		}
		cur, err := e.ind.Current(ctx, symbol)
		if err != nil {
			logger.Debug(ctx, "Realtime indicator unavailable for override check",
				"symbol", symbol, "error", err)
			return d
		}
		d.CurrentRSI, d.CurrentUsed = cur, true
		if cur >= e.cfg.Exit.Threshold {
			d.Exit = true
			d.Reason = "realtime override past threshold"
		}
		return d
	}

	cur, err := e.ind.Current(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "No indicator available at all, holding",
			"symbol", symbol, "error", err)
		return d
	}
	d.CurrentRSI, d.CurrentUsed = cur, true
	logger.Warn(ctx, "Previous-period indicator missing, deciding on realtime value",
		"symbol", symbol, "current_rsi", cur)
	if cur >= e.cfg.Exit.Threshold {
		d.Exit = true
		d.Reason = "realtime indicator at threshold, previous period missing"
	}
	return d
}
