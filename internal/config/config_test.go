package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.App.Name != "test" {
		t.Fatalf("expected app.name from file, got %q", cfg.App.Name)
	}
	if cfg.Tracker.PollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %s", cfg.Tracker.PollInterval)
	}
	if cfg.Tracker.RequiredConfirmations != 3 {
		t.Fatalf("expected 3 confirmations, got %d", cfg.Tracker.RequiredConfirmations)
	}
	if cfg.Tracker.MaxConfirmWait != 30*time.Second {
		t.Fatalf("expected 30s ceiling, got %s", cfg.Tracker.MaxConfirmWait)
	}
	if cfg.Tracker.ForceConfirmOnTimeout {
		t.Fatal("the confirmation ceiling should report timed_out by default")
	}
	if cfg.Pricing.RefreshInterval != time.Minute {
		t.Fatalf("expected 60s refresh, got %s", cfg.Pricing.RefreshInterval)
	}
	if cfg.Server.PriceCacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m server cache, got %s", cfg.Server.PriceCacheTTL)
	}
	if cfg.Purchase.MinUSD != 10 {
		t.Fatalf("expected min purchase 10, got %v", cfg.Purchase.MinUSD)
	}

	ids := cfg.PriceIDs()
	if ids["ETH"] != "ethereum" {
		t.Fatalf("expected ETH id mapping, got %#v", ids)
	}
	if _, ok := ids["FLD"]; ok {
		t.Fatal("FLD must not have a provider id")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLDGATE_TRACKER_REQUIRED_CONFIRMATIONS", "5")
	t.Setenv("FLDGATE_PRICING_SYMBOLS", "ETH,BTC")

	cfg, err := Load(writeConfig(t, "app:\n  name: env\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tracker.RequiredConfirmations != 5 {
		t.Fatalf("env override not applied, got %d", cfg.Tracker.RequiredConfirmations)
	}
	if len(cfg.Pricing.Symbols) != 2 || cfg.Pricing.Symbols[1] != "BTC" {
		t.Fatalf("expected comma separated symbols, got %#v", cfg.Pricing.Symbols)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "history:\n  backend: postgres\n"))
	if err == nil {
		t.Fatalf("postgres history without dsn should fail, got %+v", cfg.History)
	}

	if _, err := Load(writeConfig(t, "tracker:\n  required_confirmations: 0\n")); err == nil {
		t.Fatal("zero confirmations should fail validation")
	}

	if _, err := Load(writeConfig(t, "alerting:\n  telegram:\n    enabled: true\n")); err == nil {
		t.Fatal("telegram without token should fail validation")
	}
}

func TestChainEndpoints(t *testing.T) {
	cfg, err := Load(writeConfig(t, "ethereum:\n  rpc_url: http://polygon\n  chain_id: 137\n  rpc_urls:\n    \"1\": http://mainnet\n    \"137\": http://ignored\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	endpoints, err := cfg.ChainEndpoints()
	if err != nil {
		t.Fatalf("chain endpoints: %v", err)
	}
	if len(endpoints) != 2 || endpoints[1] != "http://mainnet" || endpoints[137] != "http://polygon" {
		t.Fatalf("unexpected endpoints %#v", endpoints)
	}

	if _, err := Load(writeConfig(t, "ethereum:\n  rpc_urls:\n    polygon: http://x\n")); err == nil {
		t.Fatal("non-numeric chain key should fail validation")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	if got := cfg.ResolveMaxPoints(0); got != 100 {
		t.Fatalf("expected default 100, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(7); got != 7 {
		t.Fatalf("expected override 7, got %d", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
