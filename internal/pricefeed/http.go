package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fluid-gateway/internal/version"
)

// HTTPFeed queries a running gateway's POST /api/prices endpoint.
type HTTPFeed struct {
	endpoint string
	client   *http.Client
}

// NewHTTPFeed builds a client for the gateway at baseURL.
func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFeed{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/prices",
		client:   &http.Client{Timeout: timeout},
	}
}

type pricesRequest struct {
	Symbols []string `json:"symbols"`
}

// FetchPrices posts the symbol set and decodes the price map.
func (h *HTTPFeed) FetchPrices(ctx context.Context, symbols []string) (Prices, error) {
	body, err := json.Marshal(pricesRequest{Symbols: symbols})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var prices Prices
	if err := json.Unmarshal(payload, &prices); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}
	return prices, nil
}

var _ Feed = (*HTTPFeed)(nil)
