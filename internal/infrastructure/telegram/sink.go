package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	captionLimit = 1024
	messageLimit = 4096
)

// Sink implements ports.DeliverySink. Items with an image go out through
// sendPhoto; a rejected or failed photo falls back to sendMessage.
type Sink struct {
	client *Client
	logger *slog.Logger
}

var _ ports.DeliverySink = (*Sink)(nil)

// NewSink wraps a Bot API client.
func NewSink(client *Client, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{client: client, logger: logger}
}

// Deliver posts item to item.ChatID. A rate-limited photo is not retried
// as text; the limit applies to the whole chat.
func (s *Sink) Deliver(ctx context.Context, item domain.RoutedItem) (domain.DeliveryResult, error) {
	if item.ChatID == "" {
		return domain.DeliveryResult{}, &domain.DeliveryError{Err: errors.New("routed item has no chat id")}
	}

	if item.Item.ImageURL != "" {
		id, err := s.client.sendPhoto(ctx, item.ChatID, item.Item.ImageURL, FormatItem(item, captionLimit))
		if err == nil {
			return domain.DeliveryResult{MessageID: id, WithImage: true}, nil
		}
		var de *domain.DeliveryError
		if errors.As(err, &de) && de.RateLimited {
			return domain.DeliveryResult{}, err
		}
		if ctx.Err() != nil {
			return domain.DeliveryResult{}, err
		}
		s.logger.Warn("photo send failed, falling back to text",
			"source", item.Item.SourceCode, "title", item.Item.RawTitle, "error", err)
	}

	id, err := s.client.sendMessage(ctx, item.ChatID, FormatItem(item, messageLimit))
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	return domain.DeliveryResult{MessageID: id}, nil
}

// FormatItem renders the HTML body of a post, shortening the summary so
// the whole text fits within limit runes.
func FormatItem(item domain.RoutedItem, limit int) string {
	head := fmt.Sprintf("<b>%s</b>", html.EscapeString(item.Item.RawTitle))

	var tail strings.Builder
	fmt.Fprintf(&tail, "\n\n<b>Source:</b> %s", html.EscapeString(item.Source.DisplayName()))
	if item.Item.FeedCategory != "" {
		fmt.Fprintf(&tail, "\n<b>Category:</b> %s", html.EscapeString(item.Item.FeedCategory))
	}
	if item.PageURL != "" {
		fmt.Fprintf(&tail, "\n\n<a href=\"%s\">Read on Telegraph</a>", html.EscapeString(item.PageURL))
	}
	if item.Item.CanonicalURL != "" {
		fmt.Fprintf(&tail, "\n<a href=\"%s\">Read Full Article</a>", html.EscapeString(item.Item.CanonicalURL))
	}

	budget := limit - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail.String()) - 2
	summary := item.Item.Summary
	if budget < 4 {
		summary = ""
	} else if utf8.RuneCountInString(summary) > budget {
		summary = strings.TrimSpace(string([]rune(summary)[:budget-3])) + "..."
	}
	if summary == "" {
		return head + tail.String()
	}
	return head + "\n\n" + html.EscapeString(summary) + tail.String()
}
