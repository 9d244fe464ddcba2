package interfaces

import "context"

// Notifier delivers operator notifications. Fire-and-forget: a delivery
// failure must never abort or roll back a trading action already taken.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string)
}
