// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"fluid-gateway/internal/chain"
)

// Backend answers contract calls from canned results keyed by method name or
// by "<lower-case address>:<method>".
type Backend struct {
	mu sync.Mutex

	Results  map[string][]any
	Errors   map[string]error
	Balances map[common.Address]*big.Int
	Receipts map[common.Hash]*types.Receipt

	BalanceErr  error
	ReceiptErr  error
	Height      uint64
	HeightErr   error
	EstimateErr error
	SendErr     error

	Calls []string
	Sent  []*types.Transaction
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		Results:  make(map[string][]any),
		Errors:   make(map[string]error),
		Balances: make(map[common.Address]*big.Int),
		Receipts: make(map[common.Hash]*types.Receipt),
	}
}

// Key builds an address-scoped result key.
func Key(addr common.Address, method string) string {
	return strings.ToLower(addr.Hex()) + ":" + method
}

// SetResult stores canned outputs for key.
func (b *Backend) SetResult(key string, outputs ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Results[key] = outputs
}

// SetError makes calls matching key fail.
func (b *Backend) SetError(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Errors[key] = err
}

// SetHeight moves the chain head.
func (b *Backend) SetHeight(h uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Height = h
}

// SetReceipt makes hash mined with receipt.
func (b *Backend) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Receipts[hash] = receipt
}

// CallCount returns how many times method was called.
func (b *Backend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// SentTransactions returns a copy of the broadcast transactions.
func (b *Backend) SentTransactions() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.Sent...)
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 || msg.To == nil {
		return nil, fmt.Errorf("malformed call")
	}
	method, err := chain.MethodByID(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, method.Name)

	scoped := Key(*msg.To, method.Name)
	for _, key := range []string{scoped, method.Name} {
		if err, ok := b.Errors[key]; ok {
			return nil, err
		}
	}
	for _, key := range []string{scoped, method.Name} {
		if outputs, ok := b.Results[key]; ok {
			return method.Outputs.Pack(outputs...)
		}
	}
	return nil, fmt.Errorf("no result for %s", method.Name)
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BalanceErr != nil {
		return nil, b.BalanceErr
	}
	if bal, ok := b.Balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	if r, ok := b.Receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HeightErr != nil {
		return 0, b.HeightErr
	}
	return b.Height, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.Sent)), nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return 80_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	return nil
}

var _ chain.Backend = (*Backend)(nil)
