// Package websearch queries the Brave Search API for general knowledge the
// inventory cannot answer, such as storage advice or shelf life.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
	MaxResults      = 3
)

// ErrNotConfigured is returned when no API key was supplied.
var ErrNotConfigured = errors.New("Brave Search API key not configured")

// Result is one web hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Brave is a Brave Search client.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave creates a client. An empty apiKey yields a client whose Search
// always fails with ErrNotConfigured.
func NewBrave(apiKey string) *Brave {
	return &Brave{apiKey: apiKey, endpoint: DefaultEndpoint, client: &http.Client{Timeout: 10 * time.Second}}
}

// WithEndpoint points the client at another URL. Used by tests.
func (b *Brave) WithEndpoint(endpoint string) *Brave {
	b.endpoint = endpoint
	return b
}

// Search returns at most MaxResults hits for query.
func (b *Brave) Search(ctx context.Context, query string) ([]Result, error) {
	if b.apiKey == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("brave: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(MaxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Brave Search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Brave Search returned %d", resp.StatusCode)
	}

	var body struct {
		Web struct {
			Results []Result `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := body.Web.Results
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results, nil
}
