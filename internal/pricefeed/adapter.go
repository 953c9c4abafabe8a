package pricefeed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fluid-gateway/internal/metrics"
	"fluid-gateway/internal/scheduler"
)

// AdapterOptions configure the price adapter.
type AdapterOptions struct {
	Symbols  []string
	Fallback map[string]float64
	Interval time.Duration
	Metrics  *metrics.Metrics
}

// Adapter wraps a Feed with the fallback table and a periodic refresh.
type Adapter struct {
	feed     Feed
	fallback map[string]float64
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	symbols []string
	latest  Result
}

// NewAdapter builds an adapter watching opts.Symbols.
func NewAdapter(feed Feed, opts AdapterOptions, logger zerolog.Logger) *Adapter {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	fallback := make(map[string]float64, len(opts.Fallback))
	for k, v := range opts.Fallback {
		sym := strings.ToUpper(strings.TrimSpace(k))
		if sym == "" {
			continue
		}
		fallback[sym] = v
	}
	return &Adapter{
		feed:     feed,
		fallback: fallback,
		interval: interval,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "price_adapter").Logger(),
		now:      time.Now,
		symbols:  NormalizeSymbols(opts.Symbols),
	}
}

// Prices fetches quotes for symbols. The fallback table is used if and only if
// the feed returns an error.
func (a *Adapter) Prices(ctx context.Context, symbols []string) Result {
	symbols = NormalizeSymbols(symbols)
	prices, err := a.feed.FetchPrices(ctx, symbols)
	if err != nil {
		a.logger.Warn().Err(err).Strs("symbols", symbols).Msg("price fetch failed; using fallback table")
		a.metrics.IncPriceFallback()
		return Result{
			Prices:        a.fallbackFor(symbols),
			UsingFallback: true,
			FetchedAt:     a.now().UTC(),
			Error:         err.Error(),
		}
	}
	return Result{Prices: prices, FetchedAt: a.now().UTC()}
}

func (a *Adapter) fallbackFor(symbols []string) Prices {
	out := make(Prices, len(symbols))
	for _, sym := range symbols {
		if price, ok := a.fallback[sym]; ok {
			out[sym] = Quote{Price: price}
		}
	}
	return out
}

// Watch replaces the watched symbol set.
func (a *Adapter) Watch(symbols []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.symbols = NormalizeSymbols(symbols)
}

// Symbols returns the watched symbol set.
func (a *Adapter) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.symbols...)
}

// Refresh fetches the watched symbols now. It reports false when nothing is watched.
func (a *Adapter) Refresh(ctx context.Context) (Result, bool) {
	symbols := a.Symbols()
	if len(symbols) == 0 {
		return Result{}, false
	}
	res := a.Prices(ctx, symbols)

	a.mu.Lock()
	a.latest = res
	a.mu.Unlock()
	return res, true
}

// Latest returns the most recent refresh result.
func (a *Adapter) Latest() Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Run refreshes on every interval until ctx is cancelled, handing each result
// to onResult when it is non-nil.
func (a *Adapter) Run(ctx context.Context, startupDelay time.Duration, onResult func(context.Context, Result) error) error {
	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.interval,
		StartupDelay: startupDelay,
		Immediate:    true,
	}, a.logger)
	if err != nil {
		return err
	}

	return sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		res, ok := a.Refresh(ctx)
		if !ok {
			a.logger.Debug().Msg("no symbols watched; skipping refresh")
			return nil
		}
		if onResult == nil {
			return nil
		}
		return onResult(ctx, res)
	})
}
