// Package news fetches market headlines shown at the end of the periodic
// report.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Placeholder replaces the headlines section when the feed is unavailable.
const Placeholder = "error retrieving news"

const (
	// DefaultBaseURL is the CryptoPanic API root.
	DefaultBaseURL = "https://cryptopanic.com/api/v1"
	// DefaultCount is the number of headlines in a report.
	DefaultCount = 5
)

// Provider returns the titles of the latest n headlines.
type Provider interface {
	Headlines(ctx context.Context, n int) ([]string, error)
}

// CryptoPanic reads the public posts feed.
type CryptoPanic struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewCryptoPanic creates a client. An empty baseURL selects DefaultBaseURL.
func NewCryptoPanic(token, baseURL string) *CryptoPanic {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CryptoPanic{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type postsResponse struct {
	Results []struct {
		Title string `json:"title"`
	} `json:"results"`
}

func (c *CryptoPanic) Headlines(ctx context.Context, n int) ([]string, error) {
	q := url.Values{}
	q.Set("auth_token", c.token)
	q.Set("public", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/posts/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("cryptopanic: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptopanic: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("cryptopanic: status %d", resp.StatusCode)
	}
	var body postsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("cryptopanic: decode: %w", err)
	}

	out := make([]string, 0, n)
	for _, r := range body.Results {
		if len(out) == n {
			break
		}
		out = append(out, r.Title)
	}
	return out, nil
}

// Section renders headlines as "- title" lines, or Placeholder on error.
func Section(ctx context.Context, p Provider, n int) string {
	if p == nil {
		return Placeholder
	}
	titles, err := p.Headlines(ctx, n)
	if err != nil {
		return Placeholder
	}
	lines := make([]string, len(titles))
	for i, t := range titles {
		lines[i] = "- " + t
	}
	return strings.Join(lines, "\n")
}

// IdeasLine points readers at community analysis for the first instrument's
// base asset.
func IdeasLine(base string) string {
	if base == "" {
		base = "BTC"
	}
	return fmt.Sprintf("See the latest analyst ideas at https://www.tradingview.com/ideas/%susd/", strings.ToLower(base))
}
