// Package feed downloads RSS/Atom documents and turns them into candidate items.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 NewsRelay/1.0"
	defaultMaxBody   = 5 << 20
)

// HTTPTransport fetches feed bytes and classifies failures as transient or permanent.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	logger    *slog.Logger
}

var _ ports.FeedTransport = (*HTTPTransport)(nil)

// NewHTTPTransport wires an HTTP client. Per-call deadlines come from the
// context, so the client timeout is only a backstop.
func NewHTTPTransport(client *http.Client, userAgent string, maxBody int64) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &HTTPTransport{client: client, userAgent: userAgent, maxBody: maxBody, logger: slog.Default()}
}

// WithLogger sets the logger used for truncation warnings.
func (t *HTTPTransport) WithLogger(logger *slog.Logger) *HTTPTransport {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Get downloads url. 429 and 5xx are transient, other 4xx permanent, and
// network failures transient.
func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Transient: true, Err: fmt.Errorf("request feed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &domain.FetchError{
			Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, &domain.FetchError{Transient: true, Err: fmt.Errorf("read feed: %w", err)}
	}
	if int64(len(body)) > t.maxBody {
		t.logger.Warn("feed body truncated", "url", url, "limit_bytes", t.maxBody)
		body = body[:t.maxBody]
	}
	return body, nil
}
