package app

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fluid-gateway/internal/chain"
	"fluid-gateway/internal/config"
	"fluid-gateway/internal/storage"
)

const holder = "0x1111111111111111111111111111111111111111"

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Ethereum: config.EthereumConfig{ChainID: 137},
		Wallet:   config.WalletConfig{Address: holder},
		Pricing: config.PricingConfig{
			Symbols:         []string{"ETH", "USDT"},
			Fallback:        map[string]float64{"eth": 2500, "usdt": 1},
			RefreshInterval: time.Minute,
			RequestTimeout:  time.Second,
		},
		Purchase: config.PurchaseConfig{
			MinUSD:         10,
			TargetPriceUSD: 0.05,
			Prices:         map[string]float64{"usdt": 1},
		},
		History: config.HistoryConfig{Backend: "file", Dir: t.TempDir()},
		Export:  config.ExportConfig{MaxDataPoints: 100},
	}
	return NewApp(cfg, zerolog.Nop())
}

func TestBalancesRejectsChainWithoutEndpoint(t *testing.T) {
	a := testApp(t)
	a.Config.Ethereum.RPCURLs = map[string]string{"1": "http://127.0.0.1:1"}

	err := a.Balances(context.Background(), "", 56, &bytes.Buffer{})
	if !errors.Is(err, chain.ErrUnsupportedChain) {
		t.Fatalf("expected ErrUnsupportedChain, got %v", err)
	}
}

func TestPurchaseThenShowAndExportHistory(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := a.Purchase(ctx, decimal.NewFromInt(25), "USDT", &out); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !strings.Contains(out.String(), "500.00 FLD") {
		t.Fatalf("unexpected purchase output:\n%s", out.String())
	}

	out.Reset()
	if err := a.ShowHistory(ctx, HistoryOptions{Type: "purchase"}, &out); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "purchase") || !strings.Contains(out.String(), "(local)") {
		t.Fatalf("history should list the local purchase:\n%s", out.String())
	}

	out.Reset()
	if err := a.ExportHistory(ctx, HistoryOptions{}, "-", &out); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "Hash,Type,Amount,Date,Status,From,To,Block" {
		t.Fatalf("unexpected csv:\n%s", out.String())
	}

	out.Reset()
	if err := a.ShowHistory(ctx, HistoryOptions{Type: "claim"}, &out); err != nil {
		t.Fatalf("show claims: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no transactions found" {
		t.Fatalf("expected empty claim history, got:\n%s", out.String())
	}

	if err := a.ShowHistory(ctx, HistoryOptions{Status: "bogus"}, &out); err == nil {
		t.Fatal("invalid status filter should fail")
	}
}

func TestPurchaseBelowMinimum(t *testing.T) {
	a := testApp(t)
	var out bytes.Buffer
	if err := a.Purchase(context.Background(), decimal.RequireFromString("9.99"), "USDT", &out); err == nil {
		t.Fatal("purchase under the minimum should fail")
	}
}

func TestPricesRemoteAndFallback(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/prices" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ETH":{"price":2750.5,"change24h":1.25}}`))
	}))
	defer healthy.Close()

	a := testApp(t)
	var out bytes.Buffer
	if err := a.Prices(context.Background(), PricesOptions{Symbols: []string{"eth"}, Remote: healthy.URL}, &out); err != nil {
		t.Fatalf("prices: %v", err)
	}
	if !strings.Contains(out.String(), "2750.5000") || strings.Contains(out.String(), "fallback") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"upstream down"}`))
	}))
	defer failing.Close()

	out.Reset()
	if err := a.Prices(context.Background(), PricesOptions{Remote: failing.URL}, &out); err != nil {
		t.Fatalf("prices with fallback: %v", err)
	}
	if !strings.Contains(out.String(), "2500.0000") || !strings.Contains(out.String(), "using fallback prices") {
		t.Fatalf("expected fallback table in output:\n%s", out.String())
	}
}

func TestDownsampleSnapshots(t *testing.T) {
	snaps := makeSnapshots(10)
	got := downsampleSnapshots(snaps, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 points, got %d", len(got))
	}
	if !got[0].CapturedAt.Equal(snaps[0].CapturedAt) || !got[3].CapturedAt.Equal(snaps[9].CapturedAt) {
		t.Fatal("downsampling should keep both ends")
	}
	if len(downsampleSnapshots(snaps, 0)) != 10 {
		t.Fatal("non-positive max should keep every point")
	}
	if len(downsampleSnapshots(snaps, 1)) != 1 {
		t.Fatal("max of one should keep a single point")
	}
}

func TestEncodeAndRenderSnapshots(t *testing.T) {
	snaps := makeSnapshots(5)

	var csvOut bytes.Buffer
	if err := encodeSnapshotsCSV(&csvOut, snaps); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(csvOut.String()), "\n")
	if len(lines) != 6 || !strings.HasPrefix(lines[1], snaps[0].CapturedAt.Format(time.RFC3339)+",ETH,2500,") {
		t.Fatalf("unexpected csv:\n%s", csvOut.String())
	}

	var pngOut bytes.Buffer
	if err := renderSnapshotsPNG(&pngOut, "ETH", snaps); err != nil {
		t.Fatalf("png: %v", err)
	}
	if _, err := png.Decode(&pngOut); err != nil {
		t.Fatalf("rendered chart is not a png: %v", err)
	}
}

func TestExportPricesRequiresDatabase(t *testing.T) {
	a := testApp(t)
	err := a.ExportPrices(context.Background(), ExportOptions{Symbol: "ETH", CSVPath: "out.csv"})
	if err == nil || !strings.Contains(err.Error(), "database not configured") {
		t.Fatalf("expected database error, got %v", err)
	}
	if err := a.ExportPrices(context.Background(), ExportOptions{Symbol: "ETH"}); err == nil {
		t.Fatal("missing outputs should fail")
	}
}

func makeSnapshots(n int) []storage.PriceSnapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]storage.PriceSnapshot, n)
	for i := range out {
		out[i] = storage.PriceSnapshot{
			Symbol:       "ETH",
			PriceUSD:     decimal.NewFromInt(int64(2500 + i*10)),
			Change24hPct: decimal.NewFromFloat(float64(i) - 2),
			CapturedAt:   start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}
