package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fluid-gateway/internal/actions"
	"fluid-gateway/internal/alerting"
	"fluid-gateway/internal/api"
	"fluid-gateway/internal/balance"
	"fluid-gateway/internal/chain"
	"fluid-gateway/internal/config"
	"fluid-gateway/internal/history"
	"fluid-gateway/internal/metrics"
	"fluid-gateway/internal/pricefeed"
	"fluid-gateway/internal/service"
	"fluid-gateway/internal/storage"
	"fluid-gateway/internal/tracker"
	"fluid-gateway/internal/wallet"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(),
	}
}

// newChainClients returns one lazily dialled client per configured chain. The
// primary chain's client also carries block_rpc_url.
func (a *App) newChainClients() (map[int64]*chain.Client, error) {
	endpoints, err := a.Config.ChainEndpoints()
	if err != nil {
		return nil, err
	}
	clients := make(map[int64]*chain.Client, len(endpoints))
	for id, url := range endpoints {
		opts := chain.Options{RPCURL: url, Timeout: a.Config.Ethereum.RequestTimeout}
		if id == a.Config.Ethereum.ChainID {
			opts.BlockRPCURL = a.Config.Ethereum.BlockRPCURL
		}
		clients[id] = chain.New(opts, a.Logger.With().Int64("chain_id", id).Logger())
	}
	return clients, nil
}

// newSession connects the configured account. A private key takes precedence
// over a watch-only address.
func (a *App) newSession(chains []int64) (*wallet.Session, error) {
	session := wallet.NewSession(a.Config.Ethereum.ChainID, chains...)
	switch {
	case a.Config.Wallet.PrivateKey != "":
		if err := session.ConnectWithKey(a.Config.Wallet.PrivateKey); err != nil {
			return nil, err
		}
	case a.Config.Wallet.Address != "":
		if err := session.Connect(a.Config.Wallet.Address); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (a *App) newPriceFeed() pricefeed.Feed {
	return pricefeed.NewCoinGecko(pricefeed.CoinGeckoOptions{
		BaseURL:   a.Config.Pricing.BaseURL,
		APIKey:    a.Config.Pricing.APIKey,
		IDs:       a.Config.PriceIDs(),
		Timeout:   a.Config.Pricing.RequestTimeout,
		RateLimit: a.Config.Pricing.RateLimit,
		RateBurst: a.Config.Pricing.RateBurst,
		Metrics:   a.Metrics,
	}, a.Logger)
}

func (a *App) newAdapter(feed pricefeed.Feed) *pricefeed.Adapter {
	return pricefeed.NewAdapter(feed, pricefeed.AdapterOptions{
		Symbols:  a.Config.Pricing.Symbols,
		Fallback: a.Config.FallbackPrices(),
		Interval: a.Config.Pricing.RefreshInterval,
		Metrics:  a.Metrics,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	if a.Config.Alerting.Enabled {
		return alerting.NewLogNotifier(a.Logger)
	}
	return nil
}

func (a *App) alertChannels() []string {
	if a.Config.Alerting.Telegram.Enabled {
		return []string{"telegram"}
	}
	return []string{"log"}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// openHistory selects the transaction log backend. store may be nil unless
// the postgres backend is configured.
func (a *App) openHistory(store *storage.Store) (*history.Log, error) {
	var kv history.KV
	switch strings.ToLower(a.Config.History.Backend) {
	case "memory":
		kv = history.NewMemoryKV()
	case "postgres":
		if store == nil {
			return nil, errors.New("postgres history backend requires database.dsn")
		}
		kv = store
	default:
		fileKV, err := history.NewFileKV(a.Config.History.Dir)
		if err != nil {
			return nil, err
		}
		kv = fileKV
	}
	return history.NewLog(kv, a.Logger), nil
}

func (a *App) newBalanceReader(clients map[int64]*chain.Client) (*balance.Reader, error) {
	extra := make([]balance.Token, 0, len(a.Config.Ethereum.Tokens))
	for _, t := range a.Config.Ethereum.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("ethereum.tokens: invalid address %q for %s", t.Address, t.Symbol)
		}
		extra = append(extra, balance.Token{ChainID: t.ChainID, Symbol: t.Symbol, Address: common.HexToAddress(t.Address)})
	}
	if a.Config.Ethereum.FLDAddress != "" {
		if !common.IsHexAddress(a.Config.Ethereum.FLDAddress) {
			return nil, fmt.Errorf("ethereum.fld_address is not a valid address")
		}
		extra = append(extra, balance.Token{
			ChainID: a.Config.Ethereum.ChainID,
			Symbol:  "FLD",
			Address: common.HexToAddress(a.Config.Ethereum.FLDAddress),
		})
	}
	backends := make(map[int64]balance.Backend, len(clients))
	for id, client := range clients {
		backends[id] = client
	}
	return balance.NewReader(balance.Options{Backends: backends, Extra: extra, Metrics: a.Metrics}, a.Logger), nil
}

func (a *App) newActions(session *wallet.Session, log *history.Log, client *chain.Client) (*actions.Handlers, error) {
	airdrop, err := optionalAddress("ethereum.airdrop_address", a.Config.Ethereum.AirdropAddress)
	if err != nil {
		return nil, err
	}
	presale, err := optionalAddress("ethereum.presale_address", a.Config.Ethereum.PresaleAddress)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal)
	for sym, p := range a.Config.PurchasePrices() {
		prices[sym] = decimal.NewFromFloat(p)
	}

	return actions.New(actions.Options{
		MinUSD:              decimal.NewFromFloat(a.Config.Purchase.MinUSD),
		TargetPriceUSD:      decimal.NewFromFloat(a.Config.Purchase.TargetPriceUSD),
		Prices:              prices,
		SimulatedDelay:      a.Config.Purchase.SimulatedDelay,
		PresaleAddress:      presale,
		ContractChainID:     a.Config.Ethereum.ChainID,
		ReceiptPollInterval: a.Config.Tracker.PollInterval,
		ReceiptTimeout:      a.Config.Tracker.ReceiptTimeout,
		Metrics:             a.Metrics,
	}, session, log,
		chain.NewAirdrop(airdrop, client),
		chain.NewPresale(presale, client),
		client, a.Logger), nil
}

func (a *App) newTracker(client *chain.Client) *tracker.Tracker {
	return tracker.New(client, client, tracker.Options{
		PollInterval:          a.Config.Tracker.PollInterval,
		RequiredConfirmations: uint64(a.Config.Tracker.RequiredConfirmations),
		MaxConfirmWait:        a.Config.Tracker.MaxConfirmWait,
		ReceiptTimeout:        a.Config.Tracker.ReceiptTimeout,
		ForceConfirmOnTimeout: a.Config.Tracker.ForceConfirmOnTimeout,
	}, a.Logger)
}

func optionalAddress(name, v string) (common.Address, error) {
	if v == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s is not a valid address", name)
	}
	return common.HexToAddress(v), nil
}

// components bundles the wiring shared by the server and one-shot commands.
// client is the primary chain's connection; contracts and tracking use it.
type components struct {
	client   *chain.Client
	store    *storage.Store
	session  *wallet.Session
	history  *history.Log
	balances *balance.Reader
	actions  *actions.Handlers
	close    func()
}

func (a *App) build(ctx context.Context) (*components, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	closeAll := func() {
		if closeStore != nil {
			closeStore()
		}
	}
	clients, err := a.newChainClients()
	if err != nil {
		closeAll()
		return nil, err
	}
	closeAll = func() {
		for _, client := range clients {
			client.Close()
		}
		if closeStore != nil {
			closeStore()
		}
	}

	c, err := a.assemble(clients, store)
	if err != nil {
		closeAll()
		return nil, err
	}
	c.close = closeAll
	return c, nil
}

func (a *App) assemble(clients map[int64]*chain.Client, store *storage.Store) (*components, error) {
	client := clients[a.Config.Ethereum.ChainID]
	chains := make([]int64, 0, len(clients))
	for id := range clients {
		chains = append(chains, id)
	}
	session, err := a.newSession(chains)
	if err != nil {
		return nil, err
	}
	log, err := a.openHistory(store)
	if err != nil {
		return nil, err
	}
	balances, err := a.newBalanceReader(clients)
	if err != nil {
		return nil, err
	}
	handlers, err := a.newActions(session, log, client)
	if err != nil {
		return nil, err
	}
	return &components{
		client:   client,
		store:    store,
		session:  session,
		history:  log,
		balances: balances,
		actions:  handlers,
	}, nil
}

// Serve runs the HTTP API together with the background price refresher.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()
	if c.store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; price snapshots disabled")
	}

	feed := a.newPriceFeed()
	adapter := a.newAdapter(feed)
	notifier := a.newNotifier()

	var snapshots storage.SnapshotStore
	var alertStore storage.AlertStore
	if c.store != nil {
		snapshots = c.store
		alertStore = c.store
	}
	svc := service.New(service.Options{
		AlertsEnabled: a.Config.Alerting.Enabled,
		ThresholdPct:  a.Config.Alerting.ThresholdPct,
		Cooldown:      a.Config.Alerting.Cooldown,
		NotifyTx:      a.Config.Alerting.NotifyTx,
		Channels:      a.alertChannels(),
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, adapter, snapshots, alertStore, notifier, a.Logger)

	manager := tracker.NewManager(a.newTracker(c.client), tracker.ManagerOptions{
		History:    c.history,
		OnTerminal: svc.NotifyTransaction,
		Metrics:    a.Metrics,
	}, a.Logger)
	defer manager.Close()

	server := api.New(api.Options{
		Addr:            a.Config.Server.Addr,
		Mode:            a.Config.Server.Mode,
		ReadTimeout:     a.Config.Server.ReadTimeout,
		WriteTimeout:    a.Config.Server.WriteTimeout,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout,
	}, api.Deps{
		Prices:   pricefeed.NewCachedFeed(feed, a.Config.Server.PriceCacheTTL, a.Metrics),
		Adapter:  adapter,
		Session:  c.session,
		Balances: c.balances,
		History:  c.history,
		Actions:  c.actions,
		Tracker:  manager,
		Metrics:  a.Metrics,
	}, a.Logger)

	a.Logger.Info().
		Str("addr", a.Config.Server.Addr).
		Int64("chain_id", a.Config.Ethereum.ChainID).
		Ints64("chains", c.session.Chains()).
		Bool("wallet_connected", c.session.Status().Connected).
		Msg("starting gateway")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return svc.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("gateway terminated with error")
		return err
	}

	a.Logger.Info().Msg("gateway stopped")
	return nil
}
