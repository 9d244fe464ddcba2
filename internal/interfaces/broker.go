package interfaces

import (
	"context"
	"time"

	"trade-agent/internal/types"
)

// Broker is the transport boundary to the brokerage. All calls are
// synchronous; failures arrive classified per types.ErrClass.
type Broker interface {
	// Login exchanges configured credentials for a session token. Called
	// only by the session guard.
	Login(ctx context.Context, account string) (types.SessionToken, error)

	PlaceOrder(ctx context.Context, token types.SessionToken, req types.OrderReq) (brokerOrderID string, err error)
	CancelOrder(ctx context.Context, token types.SessionToken, brokerOrderID string) (types.CancelResult, error)
	OrderStatus(ctx context.Context, token types.SessionToken, brokerOrderID string) (types.OrderStatus, error)
	Margins(ctx context.Context, token types.SessionToken) (types.Margins, error)

	HistoricalCandles(ctx context.Context, token types.SessionToken, symbol, interval string, from, to time.Time) ([]types.Candle, error)
	LTP(ctx context.Context, token types.SessionToken, symbol string) (float64, error)
}
