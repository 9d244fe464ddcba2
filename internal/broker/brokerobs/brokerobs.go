package brokerobs

import (
	"context"
	"time"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/trace"
	"trade-agent/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) Login(ctx context.Context, account string) (types.SessionToken, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Login")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Broker login", "account", account)

	tok, err := ob.broker.Login(ctx, account)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker login failed", err, "account", account)
		return types.SessionToken{}, err
	}

	logger.InfoSkip(ctx, 1, "Broker login succeeded", "account", account, "expires_at", tok.ExpiresAt)
	return tok, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, tok types.SessionToken, req types.OrderReq) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", req.Qty,
		"price", req.Price,
		"tag", req.Tag,
	)

	id, err := ob.broker.PlaceOrder(ctx, tok, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Order placed", "symbol", req.Symbol, "order_id", id)
	return id, nil
}

func (ob *observableBroker) CancelOrder(ctx context.Context, tok types.SessionToken, brokerOrderID string) (types.CancelResult, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Cancelling order", "order_id", brokerOrderID)

	res, err := ob.broker.CancelOrder(ctx, tok, brokerOrderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", brokerOrderID)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Cancel outcome", "order_id", brokerOrderID, "result", res)
	return res, nil
}

func (ob *observableBroker) OrderStatus(ctx context.Context, tok types.SessionToken, brokerOrderID string) (types.OrderStatus, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OrderStatus")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Polling order status", "order_id", brokerOrderID)

	status, err := ob.broker.OrderStatus(ctx, tok, brokerOrderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to poll order status", err, "order_id", brokerOrderID)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "Order status", "order_id", brokerOrderID, "status", status)
	return status, nil
}

func (ob *observableBroker) Margins(ctx context.Context, tok types.SessionToken) (types.Margins, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Margins")
	defer span.End()

	m, err := ob.broker.Margins(ctx, tok)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch margins", err)
		return types.Margins{}, err
	}

	logger.DebugSkip(ctx, 1, "Margins fetched", "available_cash", m.AvailableCash)
	return m, nil
}

func (ob *observableBroker) HistoricalCandles(ctx context.Context, tok types.SessionToken, symbol, interval string, from, to time.Time) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.HistoricalCandles")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching historical candles", "symbol", symbol, "interval", interval)

	candles, err := ob.broker.HistoricalCandles(ctx, tok, symbol, interval, from, to)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch historical candles", err, "symbol", symbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Historical candles fetched", "symbol", symbol, "count", len(candles))
	return candles, nil
}

func (ob *observableBroker) LTP(ctx context.Context, tok types.SessionToken, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LTP")
	defer span.End()

	price, err := ob.broker.LTP(ctx, tok, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "LTP fetched", "symbol", symbol, "price", price)
	return price, nil
}
