// Package balance reads native and ERC-20 balances for an account.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fluid-gateway/internal/chain"
	"fluid-gateway/internal/metrics"
)

// Display precision for every balance.
const precision = 4

// Token types.
const (
	TypeNative = "native"
	TypeERC20  = "ERC20"
)

// TokenBalance is a formatted balance, derived fresh on every read.
type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Contract string `json:"contract,omitempty"`
	Type     string `json:"type"`
}

// Token is an ERC-20 contract on a chain.
type Token struct {
	ChainID int64
	Symbol  string
	Address common.Address
}

// Backend is the node surface the reader needs.
type Backend interface {
	chain.Caller
	chain.BalanceReader
}

// Options configure the reader.
type Options struct {
	// Backends holds one node connection per supported chain id.
	Backends map[int64]Backend
	// Extra tokens are appended to the built-in table of their chain.
	Extra       []Token
	Concurrency int
	Metrics     *metrics.Metrics
}

// Reader reads balances for an (account, chain) pair against that chain's node.
type Reader struct {
	backends    map[int64]Backend
	tokens      map[int64][]Token
	concurrency int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewReader builds a reader over the default token table plus opts.Extra.
func NewReader(opts Options, logger zerolog.Logger) *Reader {
	tokens := DefaultTokens()
	for _, t := range opts.Extra {
		t.Symbol = strings.ToUpper(t.Symbol)
		tokens[t.ChainID] = append(tokens[t.ChainID], t)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	backends := make(map[int64]Backend, len(opts.Backends))
	for id, b := range opts.Backends {
		if b != nil {
			backends[id] = b
		}
	}
	return &Reader{
		backends:    backends,
		tokens:      tokens,
		concurrency: concurrency,
		metrics:     opts.Metrics,
		logger:      logger.With().Str("component", "balance_reader").Logger(),
	}
}

// Supports reports whether chainID has a backend.
func (r *Reader) Supports(chainID int64) bool {
	_, ok := r.backends[chainID]
	return ok
}

// Tokens returns the ERC-20 table for chainID.
func (r *Reader) Tokens(chainID int64) []Token {
	return append([]Token(nil), r.tokens[chainID]...)
}

// Balances returns the native balance followed by every ERC-20 balance in
// table order. Token reads run in parallel; a failed token is logged and
// omitted. Only a native balance failure is returned as an error. A chain
// without a backend fails with chain.ErrUnsupportedChain.
func (r *Reader) Balances(ctx context.Context, account common.Address, chainID int64) ([]TokenBalance, error) {
	backend, ok := r.backends[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", chain.ErrUnsupportedChain, chainID)
	}
	erc20 := chain.NewERC20(backend)

	native, err := backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}

	tokens := r.tokens[chainID]
	results := make([]*TokenBalance, len(tokens))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, token := range tokens {
		g.Go(func() error {
			bal, err := readToken(ctx, erc20, token, account)
			if err != nil {
				r.logger.Warn().Err(err).Str("symbol", token.Symbol).Str("contract", token.Address.Hex()).Msg("token balance read failed; omitting")
				r.metrics.IncBalanceError(token.Symbol)
				return nil
			}
			results[i] = &bal
			return nil
		})
	}
	_ = g.Wait()

	out := make([]TokenBalance, 0, len(tokens)+1)
	out = append(out, TokenBalance{
		Symbol:  NativeSymbol(chainID),
		Balance: Format(native, 18),
		Type:    TypeNative,
	})
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}

func readToken(ctx context.Context, erc20 *chain.ERC20, token Token, account common.Address) (TokenBalance, error) {
	raw, err := erc20.BalanceOf(ctx, token.Address, account)
	if err != nil {
		return TokenBalance{}, err
	}
	dec, err := erc20.Decimals(ctx, token.Address)
	if err != nil {
		return TokenBalance{}, err
	}
	return TokenBalance{
		Symbol:   token.Symbol,
		Balance:  Format(raw, dec),
		Contract: token.Address.Hex(),
		Type:     TypeERC20,
	}, nil
}

// Format renders raw token units with four fixed decimals.
func Format(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return decimal.Zero.StringFixed(precision)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).StringFixed(precision)
}
