package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fluid-gateway/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Purchase  PurchaseConfig  `mapstructure:"purchase"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	History   HistoryConfig   `mapstructure:"history"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PriceCacheTTL   time.Duration `mapstructure:"price_cache_ttl"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the price refresh loop.
type SchedulerConfig struct {
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL      string `mapstructure:"rpc_url"`
	BlockRPCURL string `mapstructure:"block_rpc_url"`
	// ChainID is the chain rpc_url serves and the contracts live on.
	ChainID int64 `mapstructure:"chain_id"`
	// RPCURLs adds endpoints for other chains, keyed by decimal chain id.
	// Balance reads and chain switches are limited to ChainID plus these.
	RPCURLs        map[string]string `mapstructure:"rpc_urls"`
	AirdropAddress string        `mapstructure:"airdrop_address"`
	PresaleAddress string        `mapstructure:"presale_address"`
	FLDAddress     string        `mapstructure:"fld_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Tokens         []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig adds an ERC-20 contract to the per-chain balance table.
type TokenConfig struct {
	ChainID int64  `mapstructure:"chain_id"`
	Symbol  string `mapstructure:"symbol"`
	Address string `mapstructure:"address"`
}

// WalletConfig selects the active account.
type WalletConfig struct {
	Address    string `mapstructure:"address"`
	PrivateKey string `mapstructure:"private_key"`
}

// PricingConfig captures price provider connectivity.
type PricingConfig struct {
	BaseURL         string             `mapstructure:"base_url"`
	APIKey          string             `mapstructure:"api_key"`
	Symbols         []string           `mapstructure:"symbols"`
	IDs             map[string]string  `mapstructure:"ids"`
	Fallback        map[string]float64 `mapstructure:"fallback"`
	CacheTTL        time.Duration      `mapstructure:"cache_ttl"`
	RefreshInterval time.Duration      `mapstructure:"refresh_interval"`
	RequestTimeout  time.Duration      `mapstructure:"request_timeout"`
	RateLimit       float64            `mapstructure:"rate_limit"`
	RateBurst       int                `mapstructure:"rate_burst"`
}

// PurchaseConfig parameterises the presale purchase flow.
type PurchaseConfig struct {
	MinUSD         float64            `mapstructure:"min_usd"`
	TargetPriceUSD float64            `mapstructure:"target_price_usd"`
	SimulatedDelay time.Duration      `mapstructure:"simulated_delay"`
	Prices         map[string]float64 `mapstructure:"prices"`
}

// TrackerConfig tunes confirmation polling.
type TrackerConfig struct {
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	RequiredConfirmations int           `mapstructure:"required_confirmations"`
	MaxConfirmWait        time.Duration `mapstructure:"max_confirm_wait"`
	ReceiptTimeout        time.Duration `mapstructure:"receipt_timeout"`
	// ForceConfirmOnTimeout reports confirmed once MaxConfirmWait elapses,
	// whatever depth was reached. When false, the default, the ceiling
	// reports timed_out.
	ForceConfirmOnTimeout bool `mapstructure:"force_confirm_on_timeout"`
}

// HistoryConfig selects where per-address transaction logs live.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	NotifyTx     bool           `mapstructure:"notify_tx"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FLDGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fldgate")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.price_cache_ttl", "5m")

	v.SetDefault("scheduler.advisory_lock_key", int64(0x464c4447))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("ethereum.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("ethereum.block_rpc_url", "https://polygon-rpc.com")
	v.SetDefault("ethereum.chain_id", 137)
	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("pricing.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricing.symbols", []string{"ETH", "MATIC", "USDT", "USDC", "BTC"})
	v.SetDefault("pricing.ids", DefaultPriceIDs())
	v.SetDefault("pricing.fallback", DefaultFallbackPrices())
	v.SetDefault("pricing.cache_ttl", "5m")
	v.SetDefault("pricing.refresh_interval", "60s")
	v.SetDefault("pricing.request_timeout", "10s")
	v.SetDefault("pricing.rate_limit", 0.5)
	v.SetDefault("pricing.rate_burst", 2)

	v.SetDefault("purchase.min_usd", 10.0)
	v.SetDefault("purchase.target_price_usd", 0.05)
	v.SetDefault("purchase.simulated_delay", "2s")
	v.SetDefault("purchase.prices", DefaultPurchasePrices())

	v.SetDefault("tracker.poll_interval", "2s")
	v.SetDefault("tracker.required_confirmations", 3)
	v.SetDefault("tracker.max_confirm_wait", "30s")
	v.SetDefault("tracker.receipt_timeout", "2m")
	v.SetDefault("tracker.force_confirm_on_timeout", false)

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.dir", "data/history")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 10.0)
	v.SetDefault("alerting.cooldown", "1h")
	v.SetDefault("alerting.notify_tx", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

// DefaultPriceIDs maps token symbols to CoinGecko asset ids. FLD is not listed.
func DefaultPriceIDs() map[string]string {
	return map[string]string{
		"ETH":   "ethereum",
		"WETH":  "weth",
		"BTC":   "bitcoin",
		"MATIC": "matic-network",
		"POL":   "polygon-ecosystem-token",
		"USDT":  "tether",
		"USDC":  "usd-coin",
		"DAI":   "dai",
		"BNB":   "binancecoin",
		"SOL":   "solana",
	}
}

// DefaultFallbackPrices are estimated USD prices used when the provider fails.
func DefaultFallbackPrices() map[string]float64 {
	return map[string]float64{
		"ETH":   2500,
		"WETH":  2500,
		"BTC":   45000,
		"MATIC": 0.5,
		"POL":   0.5,
		"USDT":  1,
		"USDC":  1,
		"DAI":   1,
		"BNB":   300,
		"SOL":   100,
		"FLD":   0.05,
	}
}

// DefaultPurchasePrices is the static table used to value purchase payments.
func DefaultPurchasePrices() map[string]float64 {
	return map[string]float64{
		"USDT":  1,
		"USDC":  1,
		"ETH":   2500,
		"MATIC": 0.5,
		"POL":   0.5,
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Pricing.CacheTTL <= 0 {
		return fmt.Errorf("pricing.cache_ttl must be greater than zero")
	}
	if c.Pricing.RefreshInterval <= 0 {
		return fmt.Errorf("pricing.refresh_interval must be greater than zero")
	}
	if c.Purchase.MinUSD < 0 {
		return fmt.Errorf("purchase.min_usd cannot be negative")
	}
	if c.Purchase.TargetPriceUSD <= 0 {
		return fmt.Errorf("purchase.target_price_usd must be greater than zero")
	}
	if _, err := c.ChainEndpoints(); err != nil {
		return err
	}
	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker.poll_interval must be greater than zero")
	}
	if c.Tracker.RequiredConfirmations < 1 {
		return fmt.Errorf("tracker.required_confirmations must be at least 1")
	}
	if c.Tracker.MaxConfirmWait <= 0 {
		return fmt.Errorf("tracker.max_confirm_wait must be greater than zero")
	}
	switch strings.ToLower(c.History.Backend) {
	case "file":
		if c.History.Dir == "" {
			return fmt.Errorf("history.dir is required for the file backend")
		}
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres history backend")
		}
	default:
		return fmt.Errorf("history.backend must be one of file, memory, postgres")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ChainEndpoints returns the RPC URL of every supported chain, including the
// primary ethereum.chain_id.
func (c *Config) ChainEndpoints() (map[int64]string, error) {
	out := map[int64]string{c.Ethereum.ChainID: c.Ethereum.RPCURL}
	for key, url := range c.Ethereum.RPCURLs {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("ethereum.rpc_urls: invalid chain id %q", key)
		}
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("ethereum.rpc_urls: empty url for chain %d", id)
		}
		if id == c.Ethereum.ChainID {
			continue
		}
		out[id] = url
	}
	return out, nil
}

// PriceIDs returns the symbol→provider id table with upper-cased symbols.
func (c *Config) PriceIDs() map[string]string {
	return upperKeys(c.Pricing.IDs)
}

// FallbackPrices returns the fallback table with upper-cased symbols.
func (c *Config) FallbackPrices() map[string]float64 {
	return upperKeys(c.Pricing.Fallback)
}

// PurchasePrices returns the purchase price table with upper-cased symbols.
func (c *Config) PurchasePrices() map[string]float64 {
	return upperKeys(c.Purchase.Prices)
}

// viper lower-cases map keys on read.
func upperKeys[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
