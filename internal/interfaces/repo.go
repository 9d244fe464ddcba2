package interfaces

import (
	"context"

	"trade-agent/internal/types"
)

// PositionRepository persists Position records. Implementations provide
// read-modify-write semantics per record; the engine is the only mutator.
type PositionRepository interface {
	SavePosition(ctx context.Context, p *types.Position) error
	FindOpenByInstrument(ctx context.Context, account, symbol string) (*types.Position, error)
	FindBySymbol(ctx context.Context, account, symbol string) (*types.Position, error)
	ListOpen(ctx context.Context, account string) ([]*types.Position, error)
}

// OrderRepository persists Order records. Orders are retained indefinitely
// for audit; terminal records are never rewritten.
type OrderRepository interface {
	SaveOrder(ctx context.Context, o *types.Order) error
	FindOrder(ctx context.Context, brokerOrderID string) (*types.Order, error)
	FindPendingByAccount(ctx context.Context, account string) ([]*types.Order, error)
	FindOpenSellByInstrument(ctx context.Context, account, symbol string) (*types.Order, error)
}

// Repository bundles the two stores behind one construction point.
type Repository interface {
	PositionRepository
	OrderRepository
}
