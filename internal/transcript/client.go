// Package transcript fetches and normalizes transcripts over HTTP.
//
// The client implements the executor's fetcher contract: each fetch targets
// one item ID and goes out through the identity's proxy when the label is a
// proxy URL. Upstream responses are mapped onto the executor's failure
// sentinels so retry classification stays in one place.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"gleaner/internal/executor"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultLanguage = "en"

	// maxBodyBytes bounds transcript responses; anything larger is junk.
	maxBodyBytes = 8 << 20
)

// Config describes the transcript client configuration.
type Config struct {
	Endpoint string
	Language string
	Timeout  time.Duration
}

// Client retrieves transcripts for catalog items. Safe for concurrent use.
type Client struct {
	endpoint *url.URL
	language string
	timeout  time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return nil, errors.New("transcript: endpoint is required")
	}
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transcript: parse endpoint: %w", err)
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		language: language,
		timeout:  timeout,
		clients:  make(map[string]*http.Client),
	}, nil
}

type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
}

type response struct {
	ItemID   string    `json:"item_id"`
	Segments []segment `json:"segments"`
}

// Fetch retrieves the transcript for itemID through the identity's proxy.
// An empty identityID uses a direct connection.
func (c *Client) Fetch(ctx context.Context, itemID, identityID string) (executor.Payload, error) {
	endpoint := *c.endpoint
	query := endpoint.Query()
	query.Set("id", itemID)
	query.Set("lang", c.language)
	endpoint.RawQuery = query.Encode()

	httpClient, err := c.clientFor(identityID)
	if err != nil {
		return executor.Payload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return executor.Payload{}, fmt.Errorf("transcript: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return executor.Payload{}, fmt.Errorf("transcript: %w: %v", executor.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return executor.Payload{}, err
	}

	var payload response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return executor.Payload{}, fmt.Errorf("transcript: %w: decode response: %v", executor.ErrTransient, err)
	}
	if len(payload.Segments) == 0 {
		return executor.Payload{}, fmt.Errorf("transcript: %w: empty transcript for %s", executor.ErrUnavailable, itemID)
	}

	text := joinSegments(payload.Segments)
	if text == "" {
		return executor.Payload{}, fmt.Errorf("transcript: %w: transcript for %s is all artifacts", executor.ErrUnavailable, itemID)
	}
	return executor.Payload{
		Text:         text,
		WordCount:    len(strings.Fields(text)),
		SegmentCount: len(payload.Segments),
	}, nil
}

// clientFor returns an HTTP client bound to the identity's proxy, building
// and caching one per identity label.
func (c *Client) clientFor(identityID string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[identityID]; ok {
		return client, nil
	}
	client := &http.Client{Timeout: c.timeout}
	if identityID != "" {
		proxyURL, err := url.Parse(identityID)
		if err != nil {
			return nil, fmt.Errorf("transcript: parse proxy %q: %w", identityID, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	c.clients[identityID] = client
	return client, nil
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(body))
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("transcript: %w: status %d: %s", executor.ErrUnavailable, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("transcript: %w: status %d: %s", executor.ErrRateLimited, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusProxyAuthRequired:
		return fmt.Errorf("transcript: %w: status %d: %s", executor.ErrBlocked, resp.StatusCode, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("transcript: %w: status %d: %s", executor.ErrTransient, resp.StatusCode, detail)
	default:
		return fmt.Errorf("transcript: %w: status %d: %s", executor.ErrUnavailable, resp.StatusCode, detail)
	}
}

var artifacts = []string{"[Music]", "[Applause]", "[Laughter]", "[music]", "[applause]", "[laughter]"}

// joinSegments concatenates segment text, strips caption artifacts, and
// collapses runs of whitespace.
func joinSegments(segments []segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(seg.Text)
	}
	text := b.String()
	for _, artifact := range artifacts {
		text = strings.ReplaceAll(text, artifact, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}
