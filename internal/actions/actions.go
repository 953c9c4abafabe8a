// Package actions orchestrates purchases and airdrop claims for the active wallet.
package actions

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fluid-gateway/internal/chain"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/metrics"
	"fluid-gateway/internal/wallet"
)

const (
	fldDecimals  = 18
	usdtDecimals = 6
)

var (
	// MinPurchaseUSD is the default purchase floor.
	MinPurchaseUSD = decimal.NewFromInt(10)
	// DefaultTargetPriceUSD is the default FLD sale price.
	DefaultTargetPriceUSD = decimal.RequireFromString("0.05")
)

// AirdropContract is the airdrop surface used by the handlers.
type AirdropContract interface {
	Address() common.Address
	IsEligible(ctx context.Context, account common.Address) (bool, error)
	HasClaimed(ctx context.Context, account common.Address) (bool, error)
	ClaimableAmount(ctx context.Context, account common.Address) (*big.Int, error)
	TotalAllocation(ctx context.Context) (*big.Int, error)
	TotalClaimed(ctx context.Context) (*big.Int, error)
	RemainingAllocation(ctx context.Context) (*big.Int, error)
	ClaimProgress(ctx context.Context) (*big.Int, error)
	Claim(ctx context.Context, signer chain.Signer) (common.Hash, error)
}

// PresaleContract is the presale read surface.
type PresaleContract interface {
	TotalUSDTRaised(ctx context.Context) (*big.Int, error)
	TotalFLDSold(ctx context.Context) (*big.Int, error)
	HardCap(ctx context.Context) (*big.Int, error)
	SoftCap(ctx context.Context) (*big.Int, error)
	SaleActive(ctx context.Context) (bool, error)
}

// Options configure the handlers.
type Options struct {
	MinUSD         decimal.Decimal
	TargetPriceUSD decimal.Decimal
	// Prices values payment tokens in USD, keyed by upper-case symbol.
	Prices         map[string]decimal.Decimal
	SimulatedDelay time.Duration
	PresaleAddress common.Address
	// ContractChainID is the chain the airdrop and presale contracts live on.
	// Claims are refused while the session is on another chain. Zero disables
	// the check.
	ContractChainID int64

	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration

	Metrics *metrics.Metrics
}

// Handlers runs purchase and claim flows.
type Handlers struct {
	opts     Options
	session  *wallet.Session
	log      *history.Log
	airdrop  AirdropContract
	presale  PresaleContract
	receipts chain.ReceiptReader
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[common.Address]struct{}
}

// New wires the handlers.
func New(opts Options, session *wallet.Session, log *history.Log, airdrop AirdropContract, presale PresaleContract, receipts chain.ReceiptReader, logger zerolog.Logger) *Handlers {
	if opts.MinUSD.IsZero() {
		opts.MinUSD = MinPurchaseUSD
	}
	if !opts.TargetPriceUSD.IsPositive() {
		opts.TargetPriceUSD = DefaultTargetPriceUSD
	}
	if opts.ReceiptPollInterval <= 0 {
		opts.ReceiptPollInterval = 2 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	prices := make(map[string]decimal.Decimal, len(opts.Prices))
	for sym, p := range opts.Prices {
		prices[strings.ToUpper(strings.TrimSpace(sym))] = p
	}
	opts.Prices = prices

	return &Handlers{
		opts:     opts,
		session:  session,
		log:      log,
		airdrop:  airdrop,
		presale:  presale,
		receipts: receipts,
		logger:   logger.With().Str("component", "actions").Logger(),
		now:      time.Now,
		inFlight: make(map[common.Address]struct{}),
	}
}

// PurchaseQuote values a payment in USD and FLD.
type PurchaseQuote struct {
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	PriceUSD  decimal.Decimal `json:"priceUsd"`
	USDValue  decimal.Decimal `json:"usdValue"`
	FLDAmount decimal.Decimal `json:"fldAmount"`
	MinUSD    decimal.Decimal `json:"minUsd"`
	Enabled   bool            `json:"enabled"`
}

// Quote prices amount of token. The purchase is enabled iff the USD value
// reaches the minimum.
func (h *Handlers) Quote(amount decimal.Decimal, token string) (PurchaseQuote, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	price, ok := h.opts.Prices[token]
	if !ok {
		return PurchaseQuote{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, token)
	}
	if !amount.IsPositive() {
		return PurchaseQuote{}, ErrInvalidAmount
	}

	usd := amount.Mul(price)
	fld := usd.Div(h.opts.TargetPriceUSD)
	return PurchaseQuote{
		Token:     token,
		Amount:    amount,
		PriceUSD:  price,
		USDValue:  usd,
		FLDAmount: fld,
		MinUSD:    h.opts.MinUSD,
		Enabled:   usd.GreaterThanOrEqual(h.opts.MinUSD),
	}, nil
}

// PurchaseRequest is a payment of Amount units of Token.
type PurchaseRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Token  string          `json:"token"`
}

// PurchaseResult is a completed purchase.
type PurchaseResult struct {
	Quote  PurchaseQuote  `json:"quote"`
	Record history.Record `json:"record"`
}

// Purchase simulates a presale purchase after the configured delay and logs
// it under a locally generated placeholder hash.
func (h *Handlers) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	account, err := h.session.Address()
	if err != nil {
		h.opts.Metrics.IncAction("purchase", "not_connected")
		return PurchaseResult{}, err
	}

	quote, err := h.Quote(req.Amount, req.Token)
	if err != nil {
		h.opts.Metrics.IncAction("purchase", "invalid")
		return PurchaseResult{}, err
	}
	if !quote.Enabled {
		h.opts.Metrics.IncAction("purchase", "below_minimum")
		return PurchaseResult{}, fmt.Errorf("%w: %s USD < %s USD", ErrBelowMinimum, quote.USDValue.StringFixed(2), h.opts.MinUSD.StringFixed(2))
	}

	release, err := h.begin(account)
	if err != nil {
		return PurchaseResult{}, err
	}
	defer release()

	if h.opts.SimulatedDelay > 0 {
		timer := time.NewTimer(h.opts.SimulatedDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PurchaseResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	to := ""
	if h.opts.PresaleAddress != (common.Address{}) {
		to = h.opts.PresaleAddress.Hex()
	}
	rec, err := h.log.Add(ctx, account.Hex(), history.Record{
		Hash:        placeholderHash(),
		Type:        history.TypePurchase,
		Amount:      quote.FLDAmount.StringFixed(2),
		Timestamp:   h.now().UnixMilli(),
		Status:      history.StatusSuccess,
		From:        account.Hex(),
		To:          to,
		Placeholder: true,
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	h.opts.Metrics.IncAction("purchase", "success")
	h.logger.Info().Str("address", account.Hex()).Str("token", quote.Token).Str("usd", quote.USDValue.StringFixed(2)).Str("fld", quote.FLDAmount.StringFixed(2)).Msg("purchase recorded")
	return PurchaseResult{Quote: quote, Record: rec}, nil
}

// ClaimResult is a settled claim.
type ClaimResult struct {
	Hash   string         `json:"hash"`
	Amount string         `json:"amount"`
	Record history.Record `json:"record"`
}

// Claim checks connection, eligibility and claimed status, then submits
// claim() and waits for the receipt. Failures after those checks are logged
// as failed records.
func (h *Handlers) Claim(ctx context.Context) (ClaimResult, error) {
	account, err := h.session.Address()
	if err != nil {
		h.opts.Metrics.IncAction("claim", "not_connected")
		return ClaimResult{}, err
	}
	if want := h.opts.ContractChainID; want != 0 {
		if got := h.session.ChainID(); got != want {
			h.opts.Metrics.IncAction("claim", "wrong_chain")
			return ClaimResult{}, fmt.Errorf("%w: active chain %d, contracts on %d", ErrWrongChain, got, want)
		}
	}

	release, err := h.begin(account)
	if err != nil {
		return ClaimResult{}, err
	}
	defer release()

	eligible, err := h.airdrop.IsEligible(ctx, account)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("check eligibility: %w", err)
	}
	if !eligible {
		h.opts.Metrics.IncAction("claim", "not_eligible")
		return ClaimResult{}, ErrNotEligible
	}
	claimed, err := h.airdrop.HasClaimed(ctx, account)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("check claimed: %w", err)
	}
	if claimed {
		h.opts.Metrics.IncAction("claim", "already_claimed")
		return ClaimResult{}, ErrAlreadyClaimed
	}
	raw, err := h.airdrop.ClaimableAmount(ctx, account)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("read claimable amount: %w", err)
	}
	amount := formatUnits(raw, fldDecimals)

	base := history.Record{
		Type:   history.TypeClaim,
		Amount: amount,
		From:   account.Hex(),
		To:     h.airdrop.Address().Hex(),
	}

	signer, err := h.session.Signer()
	if err != nil {
		return h.claimFailed(ctx, account, base, common.Hash{}, err)
	}
	hash, err := h.airdrop.Claim(ctx, signer)
	if err != nil {
		return h.claimFailed(ctx, account, base, hash, err)
	}

	pending := base
	pending.Hash = hash.Hex()
	pending.Status = history.StatusPending
	pending.Timestamp = h.now().UnixMilli()
	if _, err := h.log.Add(ctx, account.Hex(), pending); err != nil {
		h.logger.Error().Err(err).Str("hash", hash.Hex()).Msg("failed to record pending claim")
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.opts.ReceiptTimeout)
	defer cancel()
	receipt, err := chain.WaitReceipt(waitCtx, h.receipts, hash, h.opts.ReceiptPollInterval)
	if err != nil {
		// the record stays pending; the tracker can settle it later
		h.opts.Metrics.IncAction("claim", "unknown")
		return ClaimResult{Hash: hash.Hex(), Amount: amount, Record: pending}, &TransactionFailedError{Action: "claim", Hash: hash.Hex(), Err: err}
	}

	upd := history.StatusUpdate{Status: history.StatusSuccess}
	if receipt.BlockNumber != nil {
		block := receipt.BlockNumber.Uint64()
		upd.BlockNumber = &block
	}
	gas := fmt.Sprintf("%d", receipt.GasUsed)
	upd.GasUsed = &gas
	if receipt.Status != types.ReceiptStatusSuccessful {
		upd.Status = history.StatusFailed
	}

	rec, updErr := h.log.UpdateStatus(ctx, account.Hex(), hash.Hex(), upd)
	if updErr != nil {
		h.logger.Error().Err(updErr).Str("hash", hash.Hex()).Msg("failed to settle claim record")
		rec = pending
	}
	res := ClaimResult{Hash: hash.Hex(), Amount: amount, Record: rec}

	if upd.Status == history.StatusFailed {
		h.opts.Metrics.IncAction("claim", "reverted")
		return res, &TransactionFailedError{Action: "claim", Hash: hash.Hex(), Err: ErrTransactionReverted}
	}

	h.opts.Metrics.IncAction("claim", "success")
	h.logger.Info().Str("address", account.Hex()).Str("hash", hash.Hex()).Str("amount", amount).Msg("airdrop claimed")
	return res, nil
}

// claimFailed logs a failed claim. A zero hash means nothing reached the
// chain, so the record carries a placeholder hash.
func (h *Handlers) claimFailed(ctx context.Context, account common.Address, rec history.Record, hash common.Hash, cause error) (ClaimResult, error) {
	rec.Status = history.StatusFailed
	rec.Timestamp = h.now().UnixMilli()
	if hash == (common.Hash{}) {
		rec.Hash = placeholderHash()
		rec.Placeholder = true
	} else {
		rec.Hash = hash.Hex()
	}

	stored, err := h.log.Add(ctx, account.Hex(), rec)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to record failed claim")
		stored = rec
	}
	h.opts.Metrics.IncAction("claim", "failed")
	h.logger.Warn().Err(cause).Str("address", account.Hex()).Bool("placeholder", rec.Placeholder).Msg("claim failed")

	failure := &TransactionFailedError{Action: "claim", Err: cause}
	if !rec.Placeholder {
		failure.Hash = rec.Hash
	}
	return ClaimResult{Hash: failure.Hash, Amount: rec.Amount, Record: stored}, failure
}

func (h *Handlers) begin(account common.Address) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[account]; busy {
		return nil, ErrActionInProgress
	}
	h.inFlight[account] = struct{}{}
	return func() {
		h.mu.Lock()
		delete(h.inFlight, account)
		h.mu.Unlock()
	}, nil
}

// AirdropStatus is the per-account airdrop view.
type AirdropStatus struct {
	Address         string `json:"address"`
	Eligible        bool   `json:"eligible"`
	Claimed         bool   `json:"claimed"`
	ClaimableAmount string `json:"claimableAmount"`
}

// AirdropStatus reads eligibility, claimed flag and claimable amount.
func (h *Handlers) AirdropStatus(ctx context.Context, account common.Address) (AirdropStatus, error) {
	eligible, err := h.airdrop.IsEligible(ctx, account)
	if err != nil {
		return AirdropStatus{}, err
	}
	claimed, err := h.airdrop.HasClaimed(ctx, account)
	if err != nil {
		return AirdropStatus{}, err
	}
	amount, err := h.airdrop.ClaimableAmount(ctx, account)
	if err != nil {
		return AirdropStatus{}, err
	}
	return AirdropStatus{
		Address:         account.Hex(),
		Eligible:        eligible,
		Claimed:         claimed,
		ClaimableAmount: formatUnits(amount, fldDecimals),
	}, nil
}

// AirdropStats are the contract-wide airdrop totals.
type AirdropStats struct {
	TotalAllocation     string `json:"totalAllocation"`
	TotalClaimed        string `json:"totalClaimed"`
	RemainingAllocation string `json:"remainingAllocation"`
	ClaimProgress       string `json:"claimProgress"`
}

func (h *Handlers) AirdropStats(ctx context.Context) (AirdropStats, error) {
	total, err := h.airdrop.TotalAllocation(ctx)
	if err != nil {
		return AirdropStats{}, err
	}
	claimed, err := h.airdrop.TotalClaimed(ctx)
	if err != nil {
		return AirdropStats{}, err
	}
	remaining, err := h.airdrop.RemainingAllocation(ctx)
	if err != nil {
		return AirdropStats{}, err
	}
	progress, err := h.airdrop.ClaimProgress(ctx)
	if err != nil {
		return AirdropStats{}, err
	}
	return AirdropStats{
		TotalAllocation:     formatUnits(total, fldDecimals),
		TotalClaimed:        formatUnits(claimed, fldDecimals),
		RemainingAllocation: formatUnits(remaining, fldDecimals),
		ClaimProgress:       progress.String(),
	}, nil
}

// PresaleStats are the presale contract totals.
type PresaleStats struct {
	TotalUSDTRaised string `json:"totalUsdtRaised"`
	TotalFLDSold    string `json:"totalFldSold"`
	HardCap         string `json:"hardCap"`
	SoftCap         string `json:"softCap"`
	SaleActive      bool   `json:"saleActive"`
	SoftCapReached  bool   `json:"softCapReached"`
}

func (h *Handlers) PresaleStats(ctx context.Context) (PresaleStats, error) {
	raised, err := h.presale.TotalUSDTRaised(ctx)
	if err != nil {
		return PresaleStats{}, err
	}
	sold, err := h.presale.TotalFLDSold(ctx)
	if err != nil {
		return PresaleStats{}, err
	}
	hardCap, err := h.presale.HardCap(ctx)
	if err != nil {
		return PresaleStats{}, err
	}
	softCap, err := h.presale.SoftCap(ctx)
	if err != nil {
		return PresaleStats{}, err
	}
	active, err := h.presale.SaleActive(ctx)
	if err != nil {
		return PresaleStats{}, err
	}
	return PresaleStats{
		TotalUSDTRaised: formatUnits(raised, usdtDecimals),
		TotalFLDSold:    formatUnits(sold, fldDecimals),
		HardCap:         formatUnits(hardCap, usdtDecimals),
		SoftCap:         formatUnits(softCap, usdtDecimals),
		SaleActive:      active,
		SoftCapReached:  raised.Cmp(softCap) >= 0,
	}, nil
}

func formatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// placeholderHash returns a random 32-byte hash for records that never reached the chain.
func placeholderHash() string {
	id := uuid.New()
	return crypto.Keccak256Hash(id[:]).Hex()
}
