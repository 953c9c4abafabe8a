package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCoinGeckoDropsUnmappedSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "ethereum" {
			t.Fatalf("only mapped ids should be requested, got %q", got)
		}
		if r.URL.Query().Get("include_24hr_change") != "true" {
			t.Fatal("24h change must be requested")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ethereum": map[string]float64{"usd": 2500.5, "usd_24h_change": -1.25},
		})
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoOptions{
		BaseURL: srv.URL,
		IDs:     map[string]string{"ETH": "ethereum"},
		Timeout: time.Second,
	}, noopLogger())

	prices, err := cg.FetchPrices(context.Background(), []string{"ETH", "FLD"})
	if err != nil {
		t.Fatalf("fetch prices: %v", err)
	}
	if len(prices) != 1 {
		t.Fatalf("expected only ETH, got %#v", prices)
	}
	if _, ok := prices["FLD"]; ok {
		t.Fatal("FLD must be absent, not zero")
	}
	if q := prices["ETH"]; q.Price != 2500.5 || q.Change24h != -1.25 {
		t.Fatalf("unexpected ETH quote %#v", q)
	}
}

func TestCoinGeckoNoMappedSymbols(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, IDs: map[string]string{"ETH": "ethereum"}}, noopLogger())
	if _, err := cg.FetchPrices(context.Background(), []string{"FLD"}); !errors.Is(err, ErrNoMappedSymbols) {
		t.Fatalf("expected ErrNoMappedSymbols, got %v", err)
	}
	if called {
		t.Fatal("no request should be sent without mapped symbols")
	}
}

func TestCoinGeckoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": map[string]string{"error_message": "rate limited"}})
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, IDs: map[string]string{"ETH": "ethereum"}}, noopLogger())
	_, err := cg.FetchPrices(context.Background(), []string{"eth"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusTooManyRequests || httpErr.Message != "rate limited" {
		t.Fatalf("unexpected error details %#v", httpErr)
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" eth", "FLD", "ETH", ""})
	if len(got) != 2 || got[0] != "ETH" || got[1] != "FLD" {
		t.Fatalf("unexpected normalised symbols %#v", got)
	}
	if CacheKey([]string{"fld", "eth"}) != CacheKey([]string{"ETH", "FLD"}) {
		t.Fatal("cache key must ignore order and case")
	}
}
