package model

import (
	"fmt"
	"strings"
)

// knownQuotes are tried, longest first, when a symbol has no separator.
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

// Instrument represents a tradeable pair such as BTC/USDT.
type Instrument struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// ParseInstrument accepts "BTC/USDT", "btc-usdt" or "BTCUSDT".
func ParseInstrument(s string) (Instrument, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Instrument{}, fmt.Errorf("empty instrument")
	}
	if i := strings.IndexAny(s, "/-_"); i >= 0 {
		base, quote := s[:i], s[i+1:]
		if base == "" || quote == "" {
			return Instrument{}, fmt.Errorf("invalid instrument %q", s)
		}
		return Instrument{Base: base, Quote: quote}, nil
	}
	for _, q := range knownQuotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return Instrument{Base: s[:len(s)-len(q)], Quote: q}, nil
		}
	}
	return Instrument{}, fmt.Errorf("invalid instrument %q: unknown quote asset", s)
}

// Symbol returns the display form "BASE/QUOTE". It is also the Alert Memory key.
func (i Instrument) Symbol() string {
	return i.Base + "/" + i.Quote
}

// ExchangeSymbol returns the exchange form "BASEQUOTE".
func (i Instrument) ExchangeSymbol() string {
	return i.Base + i.Quote
}

func (i Instrument) String() string { return i.Symbol() }
