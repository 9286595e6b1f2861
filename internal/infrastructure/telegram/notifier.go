package telegram

import (
	"context"
	"errors"
	"fmt"

	"NewsRelay/internal/ports"
)

// Notifier sends operator reports to the admin chat.
type Notifier struct {
	client *Client
	chatID string
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the admin chat identifier.
func NewNotifier(client *Client, chatID string) *Notifier {
	return &Notifier{client: client, chatID: chatID}
}

// PublishReport posts an HTML message to the admin chat.
func (n *Notifier) PublishReport(ctx context.Context, text string) error {
	if n.client == nil || n.chatID == "" {
		return errors.New("telegram notifier misconfigured")
	}
	if _, err := n.client.sendMessage(ctx, n.chatID, text); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}
