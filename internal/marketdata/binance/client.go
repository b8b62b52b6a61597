// Package binance fetches klines from the Binance USDⓈ-M futures REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signalbot/internal/breaker"
	"signalbot/internal/marketdata"
	"signalbot/internal/model"
)

// DefaultBaseURL is the public futures endpoint.
const DefaultBaseURL = "https://fapi.binance.com"

const (
	klinesPath = "/fapi/v1/klines"
	maxLimit   = 1500
)

// Client is a marketdata.Source backed by Binance futures klines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker guards every request with b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// New creates a client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchSnapshot implements marketdata.Source. The last bar may still be
// forming. All failures wrap marketdata.ErrDataFetch.
func (c *Client) FetchSnapshot(ctx context.Context, inst model.Instrument, res model.Resolution, limit int) (model.Snapshot, error) {
	if _, err := model.ParseResolution(string(res)); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", marketdata.ErrDataFetch, err)
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	var bars []model.Bar
	call := func() error {
		var err error
		bars, err = c.klines(ctx, inst.ExchangeSymbol(), string(res), limit)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s %s: %w", marketdata.ErrDataFetch, inst.Symbol(), res, err)
	}

	snap, err := model.NewSnapshot(inst, res, bars)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s %s: %w", marketdata.ErrDataFetch, inst.Symbol(), res, err)
	}
	return snap, nil
}

func (c *Client) klines(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+klinesPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("status %d: api error %d: %s", resp.StatusCode, apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	return parseKlines(body)
}

// parseKlines decodes rows of the form
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func parseKlines(body []byte) ([]model.Bar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var vals [5]float64
		for j := range vals {
			v, err := decimal(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}
		bars = append(bars, model.Bar{
			TS:     time.UnixMilli(openMs).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return bars, nil
}

// decimal accepts both quoted ("42.1") and bare numbers.
func decimal(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
