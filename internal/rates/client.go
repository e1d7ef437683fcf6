// Package rates fetches and caches exchange rates from an external quote
// service. Rates are advisory: a lookup failure never blocks an expense,
// it only suppresses the converted amount in the reply.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// quote is the wire shape of the rate service's /latest endpoint.
type quote struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Client fetches the latest quotes for one base currency. One attempt per
// call, bounded by the client timeout; retrying is the cache's business.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a rate client against the given service base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Latest fetches the current rates table for the given base currency.
func (c *Client) Latest(ctx context.Context, base string) (map[string]float64, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	u := fmt.Sprintf("%s/latest?base=%s", c.baseURL, url.QueryEscape(base))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building rate request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rates for %s: %w", base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching rates for %s: status %d", base, resp.StatusCode)
	}

	var q quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return nil, fmt.Errorf("decoding rates for %s: %w", base, err)
	}
	if len(q.Rates) == 0 {
		return nil, fmt.Errorf("fetching rates for %s: empty rates table", base)
	}
	return q.Rates, nil
}
