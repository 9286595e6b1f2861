// Package telegram delivers routed items and operator reports through the
// Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"NewsRelay/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

// Config wires all data required to send messages.
type Config struct {
	BotToken       string
	APIBase        string
	DisablePreview bool
	Timeout        time.Duration
}

// Client performs Bot API calls and classifies their failures.
type Client struct {
	botToken       string
	apiBase        string
	disablePreview bool
	client         *http.Client
}

// NewClient registers the bot token. APIBase is overridable for tests.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		botToken:       cfg.BotToken,
		apiBase:        base,
		disablePreview: cfg.DisablePreview,
		client:         &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call posts a JSON payload to a Bot API method and returns the message id.
// Failures are *domain.DeliveryError: 429 is rate limited, other 4xx are
// permanent, 5xx and network failures are retryable.
func (c *Client) call(ctx context.Context, method string, payload map[string]any) (string, error) {
	if c.botToken == "" {
		return "", &domain.DeliveryError{Err: errors.New("telegram client misconfigured")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &domain.DeliveryError{Err: fmt.Errorf("marshal %s payload: %w", method, err)}
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &domain.DeliveryError{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &domain.DeliveryError{Retryable: true, Err: fmt.Errorf("%s: %w", method, err)}
	}
	defer resp.Body.Close()

	var out apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusOK && out.OK {
		return strconv.FormatInt(out.Result.MessageID, 10), nil
	}

	desc := out.Description
	if desc == "" {
		desc = strings.TrimSpace(string(raw))
	}
	de := &domain.DeliveryError{
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("%s: telegram error %s: %s", method, resp.Status, desc),
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		de.RateLimited = true
		de.Retryable = true
		de.RetryAfter = retryAfter(resp.Header.Get("Retry-After"), out.Parameters.RetryAfter)
	case resp.StatusCode >= http.StatusInternalServerError:
		de.Retryable = true
	}
	return "", de
}

func retryAfter(header string, param int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if param > 0 {
		return time.Duration(param) * time.Second
	}
	return 30 * time.Second
}

func (c *Client) sendMessage(ctx context.Context, chatID, text string) (string, error) {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": c.disablePreview,
	})
}

func (c *Client) sendPhoto(ctx context.Context, chatID, photo, caption string) (string, error) {
	return c.call(ctx, "sendPhoto", map[string]any{
		"chat_id":    chatID,
		"photo":      photo,
		"caption":    caption,
		"parse_mode": "HTML",
	})
}
