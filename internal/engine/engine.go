// Package engine owns position records and the decisions around them:
// folding confirmed fills into positions, scanning the universe for entries
// and re-entries, and monitoring open positions for exit triggers.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/resilience"
	"trade-agent/internal/store"
	"trade-agent/internal/types"
)

const neutralIndicator = 50.0

type Engine struct {
	cfg      *store.Config
	broker   interfaces.Broker
	exec     *resilience.Executor
	coord    interfaces.OrderCoordinator
	repo     interfaces.Repository
	ind      interfaces.IndicatorSource
	notifier interfaces.Notifier

	now func() time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

func New(cfg *store.Config, broker interfaces.Broker, exec *resilience.Executor, coord interfaces.OrderCoordinator, repo interfaces.Repository, ind interfaces.IndicatorSource, notifier interfaces.Notifier) *Engine {
	return &Engine{
		cfg:      cfg,
		broker:   broker,
		exec:     exec,
		coord:    coord,
		repo:     repo,
		ind:      ind,
		notifier: notifier,
		now:      time.Now,
	}
}

// OnOrderExecuted folds a confirmed fill into its position. A buy fill
// creates the position on first contact and averages in afterwards; a sell
// fill reduces quantity and closes the record when it reaches zero.
func (e *Engine) OnOrderExecuted(ctx context.Context, o *types.Order) (*types.Position, error) {
	if o == nil || o.Status != types.StatusExecuted {
		return nil, nil
	}

	switch o.Side {
	case types.SideBuy:
		return e.applyBuyFill(ctx, o)
	case types.SideSell:
		return e.applySellFill(ctx, o)
	}
	return nil, nil
}

func (e *Engine) applyBuyFill(ctx context.Context, o *types.Order) (*types.Position, error) {
	pos, err := e.repo.FindOpenByInstrument(ctx, o.Account, o.Symbol)
	if err != nil {
		return nil, err
	}

	price, err := e.fillPrice(ctx, o)
	if err != nil {
		return nil, err
	}

	if pos == nil {
		rsi, recorded := o.Meta.Resolve()
		if !recorded {
			// Historical records predate the metadata fields. A neutral
			// value keeps downstream arithmetic defined without faking a
			// signal boundary.
			rsi = neutralIndicator
			logger.Warn(ctx, "No entry indicator recorded, defaulting to neutral",
				"symbol", o.Symbol, "order_id", o.BrokerID, "default", neutralIndicator)
		}

		pos = &types.Position{
			ID:           uuid.NewString(),
			Account:      o.Account,
			Symbol:       o.Symbol,
			Qty:          o.Qty,
			AvgPrice:     price,
			EntryRSI:     rsi,
			EntryRSISet:  recorded,
			InitialPrice: price,
			OpenedAt:     e.now(),
			LastReentry:  price,
		}
		if err := e.repo.SavePosition(ctx, pos); err != nil {
			return nil, err
		}
		logger.Info(ctx, "Position opened",
			"symbol", o.Symbol, "qty", pos.Qty, "avg", pos.AvgPrice, "entry_rsi", rsi)
		e.notifier.Notify(ctx, "position_opened", "Position opened: "+o.Symbol,
			describePosition(pos))
		return pos, nil
	}

	oldQty, oldAvg := pos.Qty, pos.AvgPrice
	total := pos.AvgPrice*float64(pos.Qty) + price*float64(o.Qty)
	pos.Qty += o.Qty
	pos.AvgPrice = total / float64(pos.Qty)

	// A position opened before the metadata fields existed carries the
	// neutral default; the first fill that does record the indicator
	// backfills it. Once set it never changes.
	if !pos.EntryRSISet {
		if rsi, ok := o.Meta.Resolve(); ok {
			pos.EntryRSI = rsi
			pos.EntryRSISet = true
			logger.Info(ctx, "Entry indicator backfilled from fill",
				"symbol", o.Symbol, "order_id", o.BrokerID, "entry_rsi", rsi)
		}
	}

	if o.Meta.Reentry {
		pos.ReentryCount++
		pos.ReentryPrices = append(pos.ReentryPrices, price)
		pos.LastReentry = price
	}

	if err := e.repo.SavePosition(ctx, pos); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Position averaged after buy fill",
		"symbol", o.Symbol,
		"old_qty", oldQty, "old_avg", oldAvg,
		"new_qty", pos.Qty, "new_avg", pos.AvgPrice,
		"reentry", o.Meta.Reentry, "reentry_count", pos.ReentryCount)
	return pos, nil
}

func (e *Engine) applySellFill(ctx context.Context, o *types.Order) (*types.Position, error) {
	pos, err := e.repo.FindOpenByInstrument(ctx, o.Account, o.Symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		logger.Warn(ctx, "Sell fill with no open position, ignoring",
			"symbol", o.Symbol, "order_id", o.BrokerID)
		return nil, nil
	}

	price, err := e.fillPrice(ctx, o)
	if err != nil {
		return nil, err
	}

	oldQty := pos.Qty
	pos.Qty -= o.Qty
	if pos.Qty < 0 {
		pos.Qty = 0
	}
	realized := (price - pos.AvgPrice) * float64(min(oldQty, o.Qty))

	if pos.Qty == 0 {
		t := e.now()
		pos.ClosedAt = &t
		logger.Info(ctx, "Position closed",
			"symbol", o.Symbol, "sell_price", price, "avg", pos.AvgPrice, "realized_pnl", realized)
		e.notifier.Notify(ctx, "position_closed", "Position closed: "+o.Symbol,
			describePosition(pos))
	} else {
		logger.Info(ctx, "Position reduced after sell fill",
			"symbol", o.Symbol, "old_qty", oldQty, "new_qty", pos.Qty, "realized_pnl", realized)
	}

	if err := e.repo.SavePosition(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// fillPrice returns the executed price for a fill. Market orders carry no
// recorded price; the live quote is the best available approximation. When
// the quote cannot be fetched the fold fails rather than averaging a zero
// price into the position.
func (e *Engine) fillPrice(ctx context.Context, o *types.Order) (float64, error) {
	if o.Price > 0 {
		return o.Price, nil
	}
	ltp, err := resilience.Call(ctx, e.exec, "ltp",
		func(ctx context.Context, tok types.SessionToken) (float64, error) {
			return e.broker.LTP(ctx, tok, o.Symbol)
		})
	if err != nil {
		return 0, fmt.Errorf("fill price for %s: %w", o.Symbol, err)
	}
	return ltp, nil
}
