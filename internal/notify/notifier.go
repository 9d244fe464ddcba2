// Package notify delivers operator notifications. Delivery is
// fire-and-forget: a failed send is logged and dropped, never allowed to
// abort or roll back a trading action already taken.
package notify

import (
	"context"
	"strings"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to all registered senders, filtered by event type.
// An empty allow-list lets every event through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
}

var _ interfaces.Notifier = (*Notifier)(nil)

func NewNotifier(senders []Sender, events []string) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{senders: senders, events: allowed}
}

func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		logger.Debug(ctx, "Notification event filtered out", "event", event)
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			logger.Warn(ctx, "Notification delivery failed",
				"sender", s.Name(),
				"event", event,
				"title", title,
				"error", err,
			)
		}
	}
}

// Noop is the notifier used when no channel is configured.
type Noop struct{}

var _ interfaces.Notifier = (*Noop)(nil)

func (Noop) Notify(ctx context.Context, event, title, message string) {}
