// Package memory is the in-process repository used in DRY_RUN mode and in
// tests. Records are copied on the way in and out so callers never alias
// the stored state.
package memory

import (
	"context"
	"sync"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/types"
)

type Repo struct {
	mu        sync.RWMutex
	positions map[string]*types.Position // keyed by position ID
	orders    map[string]*types.Order    // keyed by broker order ID
}

var _ interfaces.Repository = (*Repo)(nil)

func New() *Repo {
	return &Repo{
		positions: make(map[string]*types.Position),
		orders:    make(map[string]*types.Order),
	}
}

func (r *Repo) SavePosition(ctx context.Context, p *types.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[p.ID] = copyPosition(p)
	return nil
}

func (r *Repo) FindOpenByInstrument(ctx context.Context, account, symbol string) (*types.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.positions {
		if p.Account == account && p.Symbol == symbol && p.IsOpen() {
			return copyPosition(p), nil
		}
	}
	return nil, nil
}

func (r *Repo) FindBySymbol(ctx context.Context, account, symbol string) (*types.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Prefer the open record; otherwise the most recently opened one.
	var latest *types.Position
	for _, p := range r.positions {
		if p.Account != account || p.Symbol != symbol {
			continue
		}
		if p.IsOpen() {
			return copyPosition(p), nil
		}
		if latest == nil || p.OpenedAt.After(latest.OpenedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyPosition(latest), nil
}

func (r *Repo) ListOpen(ctx context.Context, account string) ([]*types.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.Position
	for _, p := range r.positions {
		if p.Account == account && p.IsOpen() {
			out = append(out, copyPosition(p))
		}
	}
	return out, nil
}

func (r *Repo) SaveOrder(ctx context.Context, o *types.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.BrokerID] = copyOrder(o)
	return nil
}

func (r *Repo) FindOrder(ctx context.Context, brokerOrderID string) (*types.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[brokerOrderID]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (r *Repo) FindPendingByAccount(ctx context.Context, account string) ([]*types.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.Order
	for _, o := range r.orders {
		if o.Account == account && !o.Status.Terminal() {
			out = append(out, copyOrder(o))
		}
	}
	return out, nil
}

func (r *Repo) FindOpenSellByInstrument(ctx context.Context, account, symbol string) (*types.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.Account == account && o.Symbol == symbol && o.Side == types.SideSell && !o.Status.Terminal() {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func copyPosition(p *types.Position) *types.Position {
	cp := *p
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	cp.ReentryPrices = append([]float64(nil), p.ReentryPrices...)
	return &cp
}

func copyOrder(o *types.Order) *types.Order {
	cp := *o
	cp.Meta = copyMeta(o.Meta)
	return &cp
}

func copyMeta(m types.OrderMeta) types.OrderMeta {
	cp := m
	cp.EntryRSI = copyFloat(m.EntryRSI)
	cp.AlternateRSI = copyFloat(m.AlternateRSI)
	cp.RawSnapshot = copyFloat(m.RawSnapshot)
	return cp
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
