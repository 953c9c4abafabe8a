package actions

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fluid-gateway/internal/chain"
	"fluid-gateway/internal/chain/chaintest"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/wallet"
)

var (
	airdropAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	presaleAddr = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type autoReceipts struct {
	status uint64
	err    error
}

func (a autoReceipts) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &types.Receipt{Status: a.status, BlockNumber: big.NewInt(500), GasUsed: 51_000}, nil
}

type fixture struct {
	handlers *Handlers
	session  *wallet.Session
	log      *history.Log
	backend  *chaintest.Backend
}

func newFixture(t *testing.T, receipts chain.ReceiptReader) *fixture {
	t.Helper()
	backend := chaintest.New()
	session := wallet.NewSession(137, 1)
	log := history.NewLog(history.NewMemoryKV(), zerolog.Nop())
	if receipts == nil {
		receipts = autoReceipts{status: types.ReceiptStatusSuccessful}
	}

	h := New(Options{
		MinUSD:         decimal.NewFromInt(10),
		TargetPriceUSD: decimal.RequireFromString("0.05"),
		Prices: map[string]decimal.Decimal{
			"usdt": decimal.NewFromInt(1),
			"ETH":  decimal.NewFromInt(2500),
		},
		PresaleAddress:      presaleAddr,
		ContractChainID:     137,
		ReceiptPollInterval: 5 * time.Millisecond,
		ReceiptTimeout:      200 * time.Millisecond,
	}, session, log,
		chain.NewAirdrop(airdropAddr, backend),
		chain.NewPresale(presaleAddr, backend),
		receipts, zerolog.Nop())

	return &fixture{handlers: h, session: session, log: log, backend: backend}
}

func (f *fixture) connectWithKey(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := f.session.ConnectWithKey(hex.EncodeToString(crypto.FromECDSA(key))); err != nil {
		t.Fatal(err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

func TestQuoteMinimumBoundary(t *testing.T) {
	f := newFixture(t, nil)

	q, err := f.handlers.Quote(decimal.RequireFromString("9.99"), "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if q.Enabled {
		t.Fatal("9.99 USD must be disabled")
	}

	q, err = f.handlers.Quote(decimal.RequireFromString("10.00"), "usdt")
	if err != nil {
		t.Fatal(err)
	}
	if !q.Enabled {
		t.Fatal("10.00 USD must be enabled")
	}
	if !q.FLDAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected 200 FLD, got %s", q.FLDAmount)
	}

	q, _ = f.handlers.Quote(decimal.RequireFromString("0.004"), "ETH")
	if !q.Enabled || !q.USDValue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("0.004 ETH is 10 USD, got %s enabled=%v", q.USDValue, q.Enabled)
	}

	if _, err := f.handlers.Quote(decimal.NewFromInt(1), "DOGE"); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected ErrUnsupportedToken, got %v", err)
	}
	if _, err := f.handlers.Quote(decimal.Zero, "USDT"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestPurchase(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := PurchaseRequest{Amount: decimal.NewFromInt(50), Token: "USDT"}

	if _, err := f.handlers.Purchase(ctx, req); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := f.session.Connect("0x00000000000000000000000000000000000000d4"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.handlers.Purchase(ctx, PurchaseRequest{Amount: decimal.RequireFromString("9.99"), Token: "USDT"}); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}

	res, err := f.handlers.Purchase(ctx, req)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !res.Record.Placeholder || res.Record.Status != history.StatusSuccess || res.Record.Amount != "1000.00" {
		t.Fatalf("unexpected record %#v", res.Record)
	}
	if res.Record.To != presaleAddr.Hex() {
		t.Fatalf("unexpected recipient %s", res.Record.To)
	}

	records, _ := f.log.List(ctx, "0x00000000000000000000000000000000000000d4", history.Filter{})
	if len(records) != 1 || records[0].Hash != res.Record.Hash {
		t.Fatalf("purchase not logged: %#v", records)
	}
}

func TestPurchaseInFlightGuard(t *testing.T) {
	f := newFixture(t, nil)
	f.handlers.opts.SimulatedDelay = 150 * time.Millisecond
	if err := f.session.Connect("0x00000000000000000000000000000000000000d4"); err != nil {
		t.Fatal(err)
	}
	req := PurchaseRequest{Amount: decimal.NewFromInt(20), Token: "USDT"}

	done := make(chan error, 1)
	go func() {
		_, err := f.handlers.Purchase(context.Background(), req)
		done <- err
	}()
	time.Sleep(30 * time.Millisecond)

	if _, err := f.handlers.Purchase(context.Background(), req); !errors.Is(err, ErrActionInProgress) {
		t.Fatalf("expected ErrActionInProgress, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if _, err := f.handlers.Purchase(context.Background(), req); err != nil {
		t.Fatalf("guard must release after completion, got %v", err)
	}
}

func TestClaimRejectedBeforeSubmission(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.handlers.Claim(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	f.connectWithKey(t)
	f.backend.SetResult("isEligible", false)
	if _, err := f.handlers.Claim(ctx); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}

	f.backend.SetResult("isEligible", true)
	f.backend.SetResult("hasClaimed", true)
	if _, err := f.handlers.Claim(ctx); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if n := len(f.backend.SentTransactions()); n != 0 {
		t.Fatalf("nothing may be submitted once claimed, got %d transactions", n)
	}
}

func TestClaimRefusedOnOtherChain(t *testing.T) {
	f := newFixture(t, nil)
	account := f.connectWithKey(t)
	f.backend.SetResult("isEligible", true)
	f.backend.SetResult("hasClaimed", false)
	f.backend.SetResult("claimableAmount", big.NewInt(1))

	if err := f.session.SwitchChain(1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.handlers.Claim(context.Background()); !errors.Is(err, ErrWrongChain) {
		t.Fatalf("expected ErrWrongChain, got %v", err)
	}
	if n := len(f.backend.SentTransactions()); n != 0 {
		t.Fatalf("nothing may be signed for another chain, got %d transactions", n)
	}
	if records, _ := f.log.List(context.Background(), account.Hex(), history.Filter{}); len(records) != 0 {
		t.Fatalf("rejected claim must not be logged, got %#v", records)
	}
}

func TestClaimSuccess(t *testing.T) {
	f := newFixture(t, nil)
	account := f.connectWithKey(t)
	f.backend.SetResult("isEligible", true)
	f.backend.SetResult("hasClaimed", false)
	f.backend.SetResult("claimableAmount", new(big.Int).Mul(big.NewInt(250), big.NewInt(1e18)))

	res, err := f.handlers.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	sent := f.backend.SentTransactions()
	if len(sent) != 1 || sent[0].Hash().Hex() != res.Hash {
		t.Fatalf("claim must be recorded under the broadcast hash")
	}
	if res.Amount != "250" {
		t.Fatalf("unexpected amount %s", res.Amount)
	}

	records, _ := f.log.List(context.Background(), account.Hex(), history.Filter{})
	if len(records) != 1 {
		t.Fatalf("expected one record, got %#v", records)
	}
	rec := records[0]
	if rec.Status != history.StatusSuccess || rec.Placeholder || rec.BlockNumber == nil || *rec.BlockNumber != 500 {
		t.Fatalf("unexpected record %#v", rec)
	}
	if rec.GasUsed == nil || *rec.GasUsed != "51000" {
		t.Fatalf("gas used not recorded: %#v", rec.GasUsed)
	}
}

func TestClaimReverted(t *testing.T) {
	f := newFixture(t, autoReceipts{status: types.ReceiptStatusFailed})
	account := f.connectWithKey(t)
	f.backend.SetResult("isEligible", true)
	f.backend.SetResult("hasClaimed", false)
	f.backend.SetResult("claimableAmount", big.NewInt(0))

	_, err := f.handlers.Claim(context.Background())
	if !errors.Is(err, ErrTransactionReverted) {
		t.Fatalf("expected ErrTransactionReverted, got %v", err)
	}
	var txErr *TransactionFailedError
	if !errors.As(err, &txErr) || txErr.Hash == "" {
		t.Fatalf("reverted claims carry the real hash, got %v", err)
	}

	records, _ := f.log.List(context.Background(), account.Hex(), history.Filter{})
	if len(records) != 1 || records[0].Status != history.StatusFailed || records[0].Placeholder {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestClaimNotBroadcastUsesPlaceholder(t *testing.T) {
	f := newFixture(t, nil)
	account := f.connectWithKey(t)
	f.backend.SetResult("isEligible", true)
	f.backend.SetResult("hasClaimed", false)
	f.backend.SetResult("claimableAmount", big.NewInt(1))
	f.backend.SendErr = errors.New("insufficient funds for gas")

	_, err := f.handlers.Claim(context.Background())
	var txErr *TransactionFailedError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionFailedError, got %v", err)
	}
	if txErr.Hash != "" {
		t.Fatal("no hash should be reported when nothing was broadcast")
	}

	records, _ := f.log.List(context.Background(), account.Hex(), history.Filter{Status: history.StatusFailed})
	if len(records) != 1 || !records[0].Placeholder || records[0].Hash == "" {
		t.Fatalf("expected one placeholder failure record, got %#v", records)
	}
}

func TestClaimReadOnlyWallet(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.session.Connect("0x00000000000000000000000000000000000000d4"); err != nil {
		t.Fatal(err)
	}
	f.backend.SetResult("isEligible", true)
	f.backend.SetResult("hasClaimed", false)
	f.backend.SetResult("claimableAmount", big.NewInt(1))

	if _, err := f.handlers.Claim(context.Background()); !errors.Is(err, wallet.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e18 := big.NewInt(1e18)
	f.backend.SetResult("totalAllocation", new(big.Int).Mul(big.NewInt(1_000_000), e18))
	f.backend.SetResult("totalClaimed", new(big.Int).Mul(big.NewInt(250_000), e18))
	f.backend.SetResult("getRemainingAllocation", new(big.Int).Mul(big.NewInt(750_000), e18))
	f.backend.SetResult("getClaimProgress", big.NewInt(25))

	stats, err := f.handlers.AirdropStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalAllocation != "1000000" || stats.RemainingAllocation != "750000" || stats.ClaimProgress != "25" {
		t.Fatalf("unexpected airdrop stats %#v", stats)
	}

	f.backend.SetResult("totalUSDTRaised", big.NewInt(600_000_000_000))
	f.backend.SetResult("totalFLDSold", new(big.Int).Mul(big.NewInt(12_000_000), e18))
	f.backend.SetResult("hardCap", big.NewInt(2_000_000_000_000))
	f.backend.SetResult("softCap", big.NewInt(500_000_000_000))
	f.backend.SetResult("saleActive", true)

	presale, err := f.handlers.PresaleStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if presale.TotalUSDTRaised != "600000" || presale.HardCap != "2000000" || !presale.SoftCapReached || !presale.SaleActive {
		t.Fatalf("unexpected presale stats %#v", presale)
	}
}
