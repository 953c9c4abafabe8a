package pricefeed

import (
	"context"
	"testing"
	"time"
)

func TestCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache[int](5 * time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", 1)
	if v, ok := c.Get("k"); !ok || v != 1 {
		t.Fatalf("expected fresh hit, got %v %v", v, ok)
	}

	now = now.Add(5 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should expire at the TTL")
	}
}

func TestCachedFeedServesRepeatsFromCache(t *testing.T) {
	feed := &stubFeed{prices: Prices{"ETH": {Price: 1}}}
	cached := NewCachedFeed(feed, time.Minute, nil)

	for i := 0; i < 3; i++ {
		prices, err := cached.FetchPrices(context.Background(), []string{"eth"})
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		prices["ETH"] = Quote{Price: 99}
	}
	if feed.calls.Load() != 1 {
		t.Fatalf("expected a single upstream call, got %d", feed.calls.Load())
	}

	prices, _ := cached.FetchPrices(context.Background(), []string{"ETH"})
	if prices["ETH"].Price != 1 {
		t.Fatal("callers must not be able to mutate cached entries")
	}

	cached.Invalidate()
	_, _ = cached.FetchPrices(context.Background(), []string{"ETH"})
	if feed.calls.Load() != 2 {
		t.Fatalf("invalidate should force a refetch, got %d calls", feed.calls.Load())
	}
}

func TestCachedFeedDoesNotCacheErrors(t *testing.T) {
	feed := &stubFeed{err: errUpstream}
	cached := NewCachedFeed(feed, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := cached.FetchPrices(context.Background(), []string{"ETH"}); err == nil {
			t.Fatal("expected upstream error")
		}
	}
	if feed.calls.Load() != 2 {
		t.Fatalf("errors must not be cached, got %d calls", feed.calls.Load())
	}
}
