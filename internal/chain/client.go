// Package chain wraps the JSON-RPC and contract calls the gateway makes
// against an EVM chain.
package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

var (
	// ErrRPCNotConfigured is returned when no RPC endpoint is set.
	ErrRPCNotConfigured = errors.New("ethereum rpc url not configured")
	// ErrUnsupportedChain is returned for chain ids without a configured endpoint.
	ErrUnsupportedChain = errors.New("chain has no configured rpc endpoint")
)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BalanceReader reads native balances.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ReceiptReader fetches transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// BlockHeightReader reports the current chain head.
type BlockHeightReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Transactor can build and broadcast a contract call.
type Transactor interface {
	Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Backend is everything the gateway needs from a node.
type Backend interface {
	Transactor
	BalanceReader
	ReceiptReader
	BlockHeightReader
}

// Options parameterise the RPC client.
type Options struct {
	RPCURL string
	// BlockRPCURL is queried with raw eth_blockNumber calls. Defaults to RPCURL.
	BlockRPCURL string
	Timeout     time.Duration
}

// Client is a lazily dialled node connection.
type Client struct {
	opts   Options
	logger zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client
	blockRPC  *rpc.Client
}

// New builds a client. No connection is made until the first call.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.BlockRPCURL == "" {
		opts.BlockRPCURL = opts.RPCURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts, logger: logger.With().Str("component", "chain_client").Logger()}
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	if c.opts.RPCURL == "" {
		return nil, ErrRPCNotConfigured
	}

	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("url", c.opts.RPCURL).Msg("dialled rpc endpoint")
	c.client = client
	return client, nil
}

func (c *Client) getBlockRPC(ctx context.Context) (*rpc.Client, error) {
	if c.opts.BlockRPCURL == "" {
		return nil, ErrRPCNotConfigured
	}

	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.blockRPC != nil {
		return c.blockRPC, nil
	}

	client, err := rpc.DialContext(ctx, c.opts.BlockRPCURL)
	if err != nil {
		return nil, err
	}
	c.blockRPC = client
	return client, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.Timeout)
}

// CallContract executes a read-only call at the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, blockNumber)
}

// BalanceAt returns the native balance of account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, account, blockNumber)
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, hash)
}

// PendingNonceAt returns the next nonce for account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, account)
}

// SuggestGasPrice returns the node's legacy gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

// EstimateGas estimates the gas needed for msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// BlockNumber issues a raw eth_blockNumber call against the block endpoint.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	client, err := c.getBlockRPC(ctx)
	if err != nil {
		return 0, err
	}

	var height hexutil.Uint64
	if err := client.CallContext(ctx, &height, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(height), nil
}

// Close releases any open connections.
func (c *Client) Close() {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	if c.blockRPC != nil {
		c.blockRPC.Close()
		c.blockRPC = nil
	}
}

var _ Backend = (*Client)(nil)
