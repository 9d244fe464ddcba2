package interfaces

import (
	"context"

	"trade-agent/internal/types"
)

// SessionGuard owns the one authenticated broker session per account.
// Get renews transparently; concurrent callers for the same account
// serialize so a genuine expiry triggers exactly one network login.
type SessionGuard interface {
	Get(ctx context.Context, account string) (types.SessionToken, error)
	// Invalidate marks the current token unusable. Called by anything that
	// observes an authentication failure from the broker.
	Invalidate(account string)
}
