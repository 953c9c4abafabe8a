package pricefeed

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

type stubFeed struct {
	prices Prices
	err    error
	calls  atomic.Int32
}

func (s *stubFeed) FetchPrices(ctx context.Context, symbols []string) (Prices, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make(Prices)
	for _, sym := range NormalizeSymbols(symbols) {
		if q, ok := s.prices[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

var errUpstream = errors.New("upstream down")
