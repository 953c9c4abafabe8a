package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fluid-gateway/internal/metrics"
	"fluid-gateway/internal/version"
)

const simplePricePath = "/simple/price"

// CoinGeckoOptions parameterise the CoinGecko fetcher.
type CoinGeckoOptions struct {
	BaseURL   string
	APIKey    string
	IDs       map[string]string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	Metrics   *metrics.Metrics
}

// CoinGecko fetches spot prices from the CoinGecko simple price endpoint.
type CoinGecko struct {
	opts    CoinGeckoOptions
	ids     map[string]string
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewCoinGecko constructs a CoinGecko fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}

	ids := make(map[string]string, len(opts.IDs))
	for sym, id := range opts.IDs {
		ids[strings.ToUpper(sym)] = id
	}

	return &CoinGecko{
		opts:    opts,
		ids:     ids,
		logger:  logger.With().Str("component", "coingecko").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		baseURL: baseURL,
	}
}

// FetchPrices resolves symbols to provider ids and queries their USD price.
// Symbols without an id are dropped from the result.
func (c *CoinGecko) FetchPrices(ctx context.Context, symbols []string) (Prices, error) {
	bySymbol := make(map[string][]string)
	for _, sym := range NormalizeSymbols(symbols) {
		id, ok := c.ids[sym]
		if !ok || id == "" {
			continue
		}
		bySymbol[id] = append(bySymbol[id], sym)
	}
	if len(bySymbol) == 0 {
		return nil, ErrNoMappedSymbols
	}

	ids := make([]string, 0, len(bySymbol))
	for id := range bySymbol {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+simplePricePath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.opts.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.opts.APIKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.opts.Metrics.ObservePriceFetch("error", time.Since(started).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.opts.Metrics.ObservePriceFetch("error", time.Since(started).Seconds())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		c.opts.Metrics.ObservePriceFetch("http_error", time.Since(started).Seconds())
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var body map[string]map[string]float64
	if err := json.Unmarshal(payload, &body); err != nil {
		c.opts.Metrics.ObservePriceFetch("decode_error", time.Since(started).Seconds())
		return nil, fmt.Errorf("decode coingecko response: %w", err)
	}
	c.opts.Metrics.ObservePriceFetch("ok", time.Since(started).Seconds())

	prices := make(Prices, len(bySymbol))
	for id, syms := range bySymbol {
		entry, ok := body[id]
		if !ok {
			c.logger.Debug().Str("id", id).Msg("provider returned no price for asset")
			continue
		}
		usd, ok := entry["usd"]
		if !ok {
			continue
		}
		for _, sym := range syms {
			prices[sym] = Quote{Price: usd, Change24h: entry["usd_24h_change"]}
		}
	}

	return prices, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// HTTPError carries a non-OK upstream status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("price api error (%d)", e.Status)
	}
	return fmt.Sprintf("price api error (%d): %s", e.Status, e.Message)
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return &HTTPError{Status: status, Message: apiErr.Error}
		}
		if apiErr.Status.ErrorMessage != "" {
			return &HTTPError{Status: status, Message: apiErr.Status.ErrorMessage}
		}
	}
	return &HTTPError{Status: status, Message: strings.TrimSpace(string(payload))}
}

var _ Feed = (*CoinGecko)(nil)
