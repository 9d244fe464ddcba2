// Package orders owns the order lifecycle. Every order mutation flows
// through the Coordinator: placement, cancellation, status polling and the
// convert-to-market-exit sequence. State transitions follow the monotone
// PENDING -> OPEN -> {EXECUTED, CANCELLED, REJECTED} machine; terminal
// records are never rewritten.
package orders

import (
	"context"
	"fmt"
	"time"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/keylock"
	"trade-agent/internal/logger"
	"trade-agent/internal/metrics"
	"trade-agent/internal/resilience"
	"trade-agent/internal/tradelog"
	"trade-agent/internal/types"
)

type Coordinator struct {
	broker   interfaces.Broker
	exec     *resilience.Executor
	repo     interfaces.OrderRepository
	notifier interfaces.Notifier
	locks    *keylock.Registry

	now func() time.Time
}

var _ interfaces.OrderCoordinator = (*Coordinator)(nil)

func NewCoordinator(broker interfaces.Broker, exec *resilience.Executor, repo interfaces.OrderRepository, notifier interfaces.Notifier) *Coordinator {
	return &Coordinator{
		broker:   broker,
		exec:     exec,
		repo:     repo,
		notifier: notifier,
		locks:    keylock.New(),
		now:      time.Now,
	}
}

// Place submits the order to the broker and records it as PENDING. The
// indicator metadata travels with the record and is never mutated after.
func (c *Coordinator) Place(ctx context.Context, req types.OrderReq, entry types.EntryType, meta types.OrderMeta) (*types.Order, error) {
	brokerID, err := resilience.Call(ctx, c.exec, "place_order",
		func(ctx context.Context, tok types.SessionToken) (string, error) {
			return c.broker.PlaceOrder(ctx, tok, req)
		})
	if err != nil {
		return nil, fmt.Errorf("place %s %s: %w", req.Side, req.Symbol, err)
	}

	now := c.now()
	order := &types.Order{
		BrokerID:  brokerID,
		Account:   req.Account,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Kind:      req.Kind,
		Validity:  req.Validity,
		Status:    types.StatusPending,
		Qty:       req.Qty,
		Price:     req.Price,
		Entry:     entry,
		Meta:      meta,
		PlacedAt:  now,
		UpdatedAt: now,
	}
	if err := c.repo.SaveOrder(ctx, order); err != nil {
		// The broker accepted the order; a persistence failure here is an
		// audit gap, not a trading failure. Surface loudly and continue.
		logger.ErrorWithErr(ctx, "Order persisted at broker but not locally", err,
			"order_id", brokerID, "symbol", req.Symbol)
	}

	metrics.Orders.WithLabelValues(string(req.Side), string(req.Kind)).Inc()
	logger.Trade(ctx, req.Symbol, string(req.Side), req.Qty, req.Price, brokerID,
		"kind", req.Kind, "entry", entry)

	rsi, hasRSI := meta.Resolve()
	_ = tradelog.Append(tradelog.Entry{
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		OrderID:  brokerID,
		Reason:   string(entry),
		Qty:      req.Qty,
		Price:    req.Price,
		EntryRSI: rsi,
		Reentry:  meta.Reentry,
		Extra:    map[string]any{"rsi_recorded": hasRSI},
	})

	return order, nil
}

// Cancel cancels the order at the broker and applies the resulting state.
// An already-executed order is not an error: the fill won the race and the
// local record moves to EXECUTED.
func (c *Coordinator) Cancel(ctx context.Context, brokerOrderID string) (types.CancelResult, error) {
	unlock := c.locks.Lock(brokerOrderID)
	defer unlock()

	res, err := resilience.Call(ctx, c.exec, "cancel_order",
		func(ctx context.Context, tok types.SessionToken) (types.CancelResult, error) {
			return c.broker.CancelOrder(ctx, tok, brokerOrderID)
		})
	if err != nil {
		return "", fmt.Errorf("cancel %s: %w", brokerOrderID, err)
	}

	switch res {
	case types.CancelOK:
		c.applyStatus(ctx, brokerOrderID, types.StatusCancelled)
	case types.CancelAlreadyExecuted:
		c.applyStatus(ctx, brokerOrderID, types.StatusExecuted)
	}
	return res, nil
}

// ConvertToMarketExit atomically replaces a resting limit sell with a
// market sell at the same quantity. Serialized per order id, so concurrent
// monitor runs cannot double-replace. At most one replacement is ever
// placed for a given order.
func (c *Coordinator) ConvertToMarketExit(ctx context.Context, brokerOrderID string) (interfaces.ConvertOutcome, *types.Order, error) {
	unlock := c.locks.Lock(brokerOrderID)
	defer unlock()

	order, err := c.repo.FindOrder(ctx, brokerOrderID)
	if err != nil {
		return "", nil, err
	}
	if order == nil {
		return "", nil, fmt.Errorf("convert %s: order not found", brokerOrderID)
	}
	if order.Status.Terminal() {
		metrics.Converts.WithLabelValues(string(interfaces.ConvertNoop)).Inc()
		return interfaces.ConvertNoop, order, nil
	}
	if order.Side != types.SideSell || order.Kind != types.KindLimit {
		return "", nil, fmt.Errorf("convert %s: not a resting limit sell", brokerOrderID)
	}

	res, err := resilience.Call(ctx, c.exec, "cancel_order",
		func(ctx context.Context, tok types.SessionToken) (types.CancelResult, error) {
			return c.broker.CancelOrder(ctx, tok, brokerOrderID)
		})
	if err != nil {
		// Nothing changed at the broker; the limit order still protects
		// the position. Safe to report and let the next cycle retry.
		metrics.Converts.WithLabelValues("cancel_failed").Inc()
		return "", nil, fmt.Errorf("convert %s: cancel: %w", brokerOrderID, err)
	}

	switch res {
	case types.CancelAlreadyExecuted:
		// The limit order filled before the cancel landed. The exit
		// goal is met; placing a market order now would double-sell.
		c.applyStatus(ctx, brokerOrderID, types.StatusExecuted)
		metrics.Converts.WithLabelValues(string(interfaces.ConvertAlreadyExecuted)).Inc()
		logger.Info(ctx, "Limit exit filled before conversion, no replacement placed",
			"order_id", brokerOrderID, "symbol", order.Symbol)
		_ = tradelog.AppendEvent(tradelog.EventEntry{
			Symbol:  order.Symbol,
			OrderID: brokerOrderID,
			Event:   "CONVERT_ALREADY_EXECUTED",
			Detail:  "limit sell filled during conversion",
		})
		return interfaces.ConvertAlreadyExecuted, order, nil

	case types.CancelNotFound:
		c.applyStatus(ctx, brokerOrderID, types.StatusCancelled)
		metrics.Converts.WithLabelValues(string(interfaces.ConvertNoop)).Inc()
		return interfaces.ConvertNoop, order, nil
	}

	c.applyStatus(ctx, brokerOrderID, types.StatusCancelled)

	replacement, err := c.Place(ctx, types.OrderReq{
		Account:  order.Account,
		Symbol:   order.Symbol,
		Side:     types.SideSell,
		Kind:     types.KindMarket,
		Validity: order.Validity,
		Qty:      order.Qty,
		Tag:      "market-exit",
	}, order.Entry, order.Meta)
	if err != nil {
		// Cancelled but could not replace: the position is unprotected.
		// Escalate for manual intervention; a blind retry could fire a
		// duplicate sell once the broker recovers.
		dangling := &types.DanglingExitError{
			Symbol:  order.Symbol,
			OrderID: brokerOrderID,
			Attempt: "market replacement",
			Err:     err,
		}
		metrics.Converts.WithLabelValues("dangling").Inc()
		logger.Escalation(ctx, order.Symbol, "dangling exit",
			"order_id", brokerOrderID, "error", err)
		c.notifier.Notify(ctx, "escalation", "Dangling exit: "+order.Symbol, dangling.Error())
		_ = tradelog.AppendEvent(tradelog.EventEntry{
			Symbol:  order.Symbol,
			OrderID: brokerOrderID,
			Event:   "DANGLING_EXIT",
			Detail:  err.Error(),
		})
		return "", nil, dangling
	}

	metrics.Converts.WithLabelValues(string(interfaces.ConvertReplaced)).Inc()
	logger.Info(ctx, "Limit exit converted to market",
		"symbol", order.Symbol, "cancelled", brokerOrderID, "replacement", replacement.BrokerID)
	_ = tradelog.AppendEvent(tradelog.EventEntry{
		Symbol:  order.Symbol,
		OrderID: brokerOrderID,
		Event:   "CONVERT_REPLACED",
		Detail:  "replaced by " + replacement.BrokerID,
	})
	return interfaces.ConvertReplaced, replacement, nil
}

// PollStatus fetches the broker-side status and reconciles the local record.
func (c *Coordinator) PollStatus(ctx context.Context, brokerOrderID string) (types.OrderStatus, error) {
	status, err := resilience.Call(ctx, c.exec, "order_status",
		func(ctx context.Context, tok types.SessionToken) (types.OrderStatus, error) {
			return c.broker.OrderStatus(ctx, tok, brokerOrderID)
		})
	if err != nil {
		return "", fmt.Errorf("status %s: %w", brokerOrderID, err)
	}

	unlock := c.locks.Lock(brokerOrderID)
	defer unlock()
	c.applyStatus(ctx, brokerOrderID, status)
	return status, nil
}

// applyStatus advances the local record to next if the transition is legal.
// Illegal transitions (stale poll results, duplicate terminal writes) are
// dropped. Caller holds the per-order lock.
func (c *Coordinator) applyStatus(ctx context.Context, brokerOrderID string, next types.OrderStatus) {
	order, err := c.repo.FindOrder(ctx, brokerOrderID)
	if err != nil || order == nil {
		return
	}
	if !order.Status.CanTransition(next) {
		if order.Status != next {
			logger.Debug(ctx, "Dropping illegal order state transition",
				"order_id", brokerOrderID, "from", order.Status, "to", next)
		}
		return
	}
	order.Status = next
	order.UpdatedAt = c.now()
	if err := c.repo.SaveOrder(ctx, order); err != nil {
		logger.ErrorWithErr(ctx, "Could not persist order state transition", err,
			"order_id", brokerOrderID, "to", next)
	}
}
