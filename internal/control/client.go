package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/usecase"
)

// Client talks to a running relay's control server.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets addr, either host:port or a full URL. A zero timeout
// leaves requests bounded only by their context; forced runs can be long.
func NewClient(addr string, timeout time.Duration) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// Health fetches the health view. A degraded relay answers 503 with the
// same body, which is returned without error.
func (c *Client) Health(ctx context.Context) (usecase.Health, error) {
	var h usecase.Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h, http.StatusOK, http.StatusServiceUnavailable)
	return h, err
}

// Force triggers a forced run and waits for its report. A run that ended
// with an error still returns its report alongside the error.
func (c *Client) Force(ctx context.Context) (domain.RunReport, error) {
	var resp ForceResponse
	if err := c.do(ctx, http.MethodPost, "/runs/force", nil, &resp, http.StatusOK, http.StatusInternalServerError); err != nil {
		return domain.RunReport{}, err
	}
	if resp.Error != "" {
		return resp.Report, fmt.Errorf("run failed: %s", resp.Error)
	}
	return resp.Report, nil
}

// FailedDeliveries lists failed delivery records.
func (c *Client) FailedDeliveries(ctx context.Context) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	err := c.do(ctx, http.MethodGet, "/deliveries/failed", nil, &out, http.StatusOK)
	return out, err
}

// Requeue asks the relay to forget a failed delivery. It reports false when
// no failed record matched.
func (c *Client) Requeue(ctx context.Context, title, date string) (bool, error) {
	var resp RequeueResponse
	err := c.do(ctx, http.MethodPost, "/deliveries/requeue", RequeueRequest{Title: title, Date: date}, &resp,
		http.StatusOK, http.StatusNotFound)
	return resp.Removed, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("server error: %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("server error: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
