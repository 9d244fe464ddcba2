package notify

import (
	"context"
	"fmt"
	"time"

	"trade-agent/internal/api"
)

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *api.Client
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: api.NewClient(
			api.WithBaseURL("https://api.telegram.org"),
			api.WithTimeout(10*time.Second),
		),
	}
}

// Send posts a message to the configured chat using sendMessage. The title
// is rendered in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}

	if _, err := t.client.POST(ctx, "/bot"+t.token+"/sendMessage", payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
