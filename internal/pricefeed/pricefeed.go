package pricefeed

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNoMappedSymbols is returned when none of the requested symbols has a provider id.
var ErrNoMappedSymbols = errors.New("no requested symbol maps to a provider asset")

// Quote is the USD price of one token and its 24h change in percent.
type Quote struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
}

// Prices maps upper-cased token symbols to quotes.
type Prices map[string]Quote

// Feed retrieves prices for a set of token symbols.
type Feed interface {
	FetchPrices(ctx context.Context, symbols []string) (Prices, error)
}

// Result is what the adapter hands to consumers after each fetch.
type Result struct {
	Prices        Prices    `json:"prices"`
	UsingFallback bool      `json:"usingFallback"`
	FetchedAt     time.Time `json:"fetchedAt"`
	Error         string    `json:"error,omitempty"`
}

// NormalizeSymbols upper-cases, trims, de-duplicates and sorts symbols.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CacheKey identifies a symbol set independent of order and case.
func CacheKey(symbols []string) string {
	return strings.Join(NormalizeSymbols(symbols), ",")
}
