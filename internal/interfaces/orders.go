package interfaces

import (
	"context"

	"trade-agent/internal/types"
)

// ConvertOutcome is the result of a convert-to-market-exit sequence.
type ConvertOutcome string

const (
	// ConvertReplaced: limit order cancelled and market replacement placed.
	ConvertReplaced ConvertOutcome = "REPLACED"
	// ConvertAlreadyExecuted: the order filled before or during the
	// sequence. Success path, no replacement placed.
	ConvertAlreadyExecuted ConvertOutcome = "ALREADY_EXECUTED"
	// ConvertNoop: the order was already in a terminal state.
	ConvertNoop ConvertOutcome = "NOOP"
)

// OrderCoordinator tracks in-flight orders and owns every order mutation.
// Tasks never touch order records directly.
type OrderCoordinator interface {
	Place(ctx context.Context, req types.OrderReq, entry types.EntryType, meta types.OrderMeta) (*types.Order, error)
	Cancel(ctx context.Context, brokerOrderID string) (types.CancelResult, error)
	// ConvertToMarketExit atomically replaces a resting limit sell with a
	// market sell. At most one replacement per order, ever.
	ConvertToMarketExit(ctx context.Context, brokerOrderID string) (ConvertOutcome, *types.Order, error)
	PollStatus(ctx context.Context, brokerOrderID string) (types.OrderStatus, error)
}
