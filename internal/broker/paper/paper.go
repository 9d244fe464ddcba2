// Package paper is the simulated broker transport used in DRY_RUN mode.
// Prices follow a seeded random walk; market orders fill immediately,
// limit orders fill when the walk crosses their price. No network calls.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/types"
)

type simOrder struct {
	req    types.OrderReq
	status types.OrderStatus
}

type Paper struct {
	mu     sync.Mutex
	rng    *rand.Rand
	orders map[string]*simOrder
	prices map[string]float64
	cash   float64
	seq    int64
}

var _ interfaces.Broker = (*Paper)(nil)

func New(startingCash float64, seed int64) *Paper {
	return &Paper{
		rng:    rand.New(rand.NewSource(seed)),
		orders: make(map[string]*simOrder),
		prices: make(map[string]float64),
		cash:   startingCash,
	}
}

func (p *Paper) Login(ctx context.Context, account string) (types.SessionToken, error) {
	now := time.Now()
	return types.SessionToken{
		Value:     fmt.Sprintf("SIM-%d", now.UnixNano()),
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, tok types.SessionToken, req types.OrderReq) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	id := fmt.Sprintf("SIM-%d", p.seq)

	o := &simOrder{req: req, status: types.StatusOpen}
	if req.Kind == types.KindMarket {
		o.status = types.StatusExecuted
	}
	p.orders[id] = o
	return id, nil
}

func (p *Paper) CancelOrder(ctx context.Context, tok types.SessionToken, brokerOrderID string) (types.CancelResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return types.CancelNotFound, nil
	}
	if o.status == types.StatusExecuted {
		return types.CancelAlreadyExecuted, nil
	}
	o.status = types.StatusCancelled
	return types.CancelOK, nil
}

func (p *Paper) OrderStatus(ctx context.Context, tok types.SessionToken, brokerOrderID string) (types.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return "", types.Rejected("order_status", fmt.Errorf("unknown order %s", brokerOrderID))
	}

	if o.status == types.StatusOpen && o.req.Kind == types.KindLimit {
		price := p.walk(o.req.Symbol)
		if (o.req.Side == types.SideBuy && price <= o.req.Price) ||
			(o.req.Side == types.SideSell && price >= o.req.Price) {
			o.status = types.StatusExecuted
		}
	}
	return o.status, nil
}

func (p *Paper) Margins(ctx context.Context, tok types.SessionToken) (types.Margins, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.Margins{AvailableCash: p.cash}, nil
}

func (p *Paper) HistoricalCandles(ctx context.Context, tok types.SessionToken, symbol, interval string, from, to time.Time) ([]types.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := int(to.Sub(from) / (24 * time.Hour))
	if n <= 0 {
		n = 1
	}

	base := p.price(symbol)
	candles := make([]types.Candle, 0, n)
	ts := from.Unix()
	for i := 0; i < n; i++ {
		c := base + (p.rng.Float64()-0.5)*base*0.02
		candles = append(candles, types.Candle{
			Ts:    ts + int64(i)*86400,
			Open:  c - 0.5,
			High:  c + p.rng.Float64()*3,
			Low:   c - p.rng.Float64()*3,
			Close: c,
			Vol:   p.rng.Float64() * 1000,
		})
		base = c
	}
	return candles, nil
}

func (p *Paper) LTP(ctx context.Context, tok types.SessionToken, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.walk(symbol), nil
}

// price returns the current simulated price without advancing the walk.
func (p *Paper) price(symbol string) float64 {
	if v, ok := p.prices[symbol]; ok {
		return v
	}
	v := 1000 + p.rng.Float64()*100
	p.prices[symbol] = v
	return v
}

// walk advances the random walk one step. Caller holds the lock.
func (p *Paper) walk(symbol string) float64 {
	v := p.price(symbol)
	v += (p.rng.Float64() - 0.5) * v * 0.005
	p.prices[symbol] = v
	return v
}
