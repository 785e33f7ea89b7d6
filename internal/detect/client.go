// Package detect integrates the asynchronous voice-authenticity scoring
// provider: clip submission, result polling, and the metric types shared
// with the callback endpoint.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Metrics is the provider's authenticity verdict for one clip.
type Metrics struct {
	Label           string    `json:"label"`
	Score           []float64 `json:"score"`
	Consistency     float64   `json:"consistency"`
	AggregatedScore float64   `json:"aggregated_score"`
}

// Submitter obtains tracking tokens for published clips.
type Submitter interface {
	Submit(ctx context.Context, fileURL string) (string, error)
}

// Fetcher reads eventual results for a tracking token. ready is false while
// the provider is still scoring.
type Fetcher interface {
	Fetch(ctx context.Context, token string) (m *Metrics, ready bool, err error)
}

// Client talks to a resemble-style detection API.
type Client struct {
	baseURL     string
	token       string
	callbackURL string
	client      *http.Client
	log         zerolog.Logger
}

// NewClient creates a detection client. callbackURL, when non-empty, is
// registered with each submission so the provider can deliver results
// out-of-band instead of being polled.
func NewClient(baseURL, token, callbackURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log.With().Str("component", "detect-client").Logger(),
	}
}

// CallbackEnabled reports whether submissions register a callback URL.
func (c *Client) CallbackEnabled() bool { return c.callbackURL != "" }

// detectItem is the provider's result envelope payload.
type detectItem struct {
	UUID    string          `json:"uuid"`
	Metrics json.RawMessage `json:"metrics"`
}

type detectResponse struct {
	Success bool        `json:"success"`
	Item    *detectItem `json:"item"`
}

// Submit sends a clip URL for scoring and returns the provider's opaque
// tracking token.
func (c *Client) Submit(ctx context.Context, fileURL string) (string, error) {
	q := url.Values{"url": {fileURL}}
	if c.callbackURL != "" {
		q.Set("callback_url", c.callbackURL)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/detect?"+q.Encode())
	if err != nil {
		return "", err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if !resp.Success || resp.Item == nil || resp.Item.UUID == "" {
		return "", fmt.Errorf("submission rejected: %s", string(body))
	}

	c.log.Info().Str("uuid", resp.Item.UUID).Msg("clip submitted for detection")
	return resp.Item.UUID, nil
}

// Fetch queries one submission's state. ready is false while the provider
// has not finished scoring (metrics absent or empty).
func (c *Client) Fetch(ctx context.Context, token string) (*Metrics, bool, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/detect/"+url.PathEscape(token))
	if err != nil {
		return nil, false, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, fmt.Errorf("decode detect response: %w", err)
	}
	if !resp.Success || resp.Item == nil {
		return nil, false, fmt.Errorf("detect query rejected: %s", string(body))
	}

	if len(resp.Item.Metrics) == 0 || string(resp.Item.Metrics) == "null" || string(resp.Item.Metrics) == "{}" {
		return nil, false, nil
	}

	var m Metrics
	if err := json.Unmarshal(resp.Item.Metrics, &m); err != nil {
		return nil, false, fmt.Errorf("decode metrics: %w", err)
	}
	return &m, true, nil
}

func (c *Client) do(ctx context.Context, method, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
