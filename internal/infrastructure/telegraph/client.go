// Package telegraph publishes extracted articles as Telegraph pages.
package telegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const (
	defaultEndpoint = "https://api.telegra.ph"
	titleLimit      = 256
	authorLimit     = 128
)

// Config defines how to contact the Telegraph API.
type Config struct {
	Endpoint   string
	Token      string
	AuthorName string
	AuthorURL  string
}

// Client implements ports.PagePublisher.
type Client struct {
	endpoint   string
	token      string
	authorName string
	authorURL  string
	httpClient *http.Client
}

var _ ports.PagePublisher = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		token:      cfg.Token,
		authorName: cfg.AuthorName,
		authorURL:  cfg.AuthorURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Node is a Telegraph DOM node. Plain strings are text nodes.
type Node struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []any             `json:"children,omitempty"`
}

type apiResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	} `json:"result"`
}

// Publish creates a page for the item and returns its public URL.
func (c *Client) Publish(ctx context.Context, item domain.RoutedItem, content domain.ArticleContent) (string, error) {
	if c == nil {
		return "", errors.New("telegraph client is nil")
	}
	if c.token == "" {
		return "", errors.New("telegraph client misconfigured")
	}
	if content.Empty() {
		return "", errors.New("telegraph: nothing to publish")
	}

	nodes, err := json.Marshal(BuildNodes(item, content))
	if err != nil {
		return "", fmt.Errorf("marshal telegraph content: %w", err)
	}

	form := url.Values{}
	form.Set("access_token", c.token)
	form.Set("title", truncate(item.Item.RawTitle, titleLimit))
	form.Set("content", string(nodes))
	form.Set("return_content", "false")
	if c.authorName != "" {
		form.Set("author_name", truncate(c.authorName, authorLimit))
	}
	if c.authorURL != "" {
		form.Set("author_url", c.authorURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/createPage", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("telegraph error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode telegraph response: %w", err)
	}
	if !out.OK || out.Result.URL == "" {
		return "", fmt.Errorf("telegraph rejected page: %s", out.Error)
	}
	return out.Result.URL, nil
}

// BuildNodes renders the lead image, the extracted blocks and a source link.
func BuildNodes(item domain.RoutedItem, content domain.ArticleContent) []Node {
	nodes := make([]Node, 0, len(content.Blocks)+2)

	lead := item.Item.ImageURL
	if lead == "" && len(content.Images) > 0 {
		lead = content.Images[0]
	}
	if lead != "" {
		nodes = append(nodes, Node{Tag: "img", Attrs: map[string]string{"src": lead}})
	}

	for _, b := range content.Blocks {
		nodes = append(nodes, Node{Tag: string(b.Kind), Children: []any{b.Text}})
	}

	if item.Item.CanonicalURL != "" {
		nodes = append(nodes, Node{Tag: "p", Children: []any{
			"Source: ",
			Node{Tag: "a", Attrs: map[string]string{"href": item.Item.CanonicalURL}, Children: []any{item.Source.DisplayName()}},
		}})
	}
	return nodes
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
