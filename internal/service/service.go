// Package service runs the background price refresher.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fluid-gateway/internal/alerting"
	"fluid-gateway/internal/pricefeed"
	"fluid-gateway/internal/storage"
	"fluid-gateway/internal/tracker"
)

// Options configure the refresher.
type Options struct {
	AlertsEnabled bool
	ThresholdPct  float64
	Cooldown      time.Duration
	NotifyTx      bool
	Channels      []string
	LockKey       int64
	StartupDelay  time.Duration
}

// Service refreshes prices, persists snapshots and raises price-move alerts.
type Service struct {
	adapter    *pricefeed.Adapter
	snapshots  storage.SnapshotStore
	alertStore storage.AlertStore
	locker     storage.AdvisoryLocker
	notifier   alerting.Notifier
	logger     zerolog.Logger
	now        func() time.Time

	threshold    decimal.Decimal
	cooldown     time.Duration
	alertsOn     bool
	notifyTx     bool
	channels     []string
	lockKey      int64
	startupDelay time.Duration

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// New constructs the refresher. snapshots, alertStore and notifier may be nil.
func New(opts Options, adapter *pricefeed.Adapter, snapshots storage.SnapshotStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if opts.AlertsEnabled && opts.ThresholdPct > 0 {
		threshold = decimal.NewFromFloat(opts.ThresholdPct)
	}

	var locker storage.AdvisoryLocker
	if l, ok := snapshots.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		adapter:      adapter,
		snapshots:    snapshots,
		alertStore:   alertStore,
		locker:       locker,
		notifier:     notifier,
		logger:       logger.With().Str("component", "service").Logger(),
		now:          time.Now,
		threshold:    threshold,
		cooldown:     opts.Cooldown,
		alertsOn:     opts.AlertsEnabled,
		notifyTx:     opts.NotifyTx,
		channels:     opts.Channels,
		lockKey:      opts.LockKey,
		startupDelay: opts.StartupDelay,
		lastAlert:    make(map[string]time.Time),
	}
}

// Run refreshes on the adapter's interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.adapter == nil {
		return fmt.Errorf("price adapter not configured")
	}
	return s.adapter.Run(ctx, s.startupDelay, s.ProcessResult)
}

// ProcessResult persists and evaluates one refresh result. Only the instance
// holding the advisory lock writes.
func (s *Service) ProcessResult(ctx context.Context, res pricefeed.Result) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip refresh result because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	symbols := make([]string, 0, len(res.Prices))
	for sym := range res.Prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	if s.snapshots != nil && len(symbols) > 0 {
		snaps := make([]storage.PriceSnapshot, 0, len(symbols))
		for _, sym := range symbols {
			q := res.Prices[sym]
			snaps = append(snaps, storage.PriceSnapshot{
				Symbol:        sym,
				PriceUSD:      decimal.NewFromFloat(q.Price),
				Change24hPct:  decimal.NewFromFloat(q.Change24h),
				UsingFallback: res.UsingFallback,
				CapturedAt:    res.FetchedAt,
			})
		}
		if err := s.snapshots.InsertPriceSnapshots(ctx, snaps); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist price snapshots")
		}
	}

	s.logger.Info().
		Int("symbols", len(symbols)).
		Bool("using_fallback", res.UsingFallback).
		Msg("prices refreshed")

	// fallback quotes carry no 24h change
	if !s.alertsOn || s.notifier == nil || s.threshold.IsZero() || res.UsingFallback {
		return nil
	}
	for _, sym := range symbols {
		s.evaluate(ctx, sym, res.Prices[sym], res.FetchedAt)
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, symbol string, q pricefeed.Quote, at time.Time) {
	change := decimal.NewFromFloat(q.Change24h)
	if change.Abs().LessThan(s.threshold) {
		return
	}
	if s.coolingDown(ctx, symbol) {
		s.logger.Debug().Str("symbol", symbol).Msg("alert suppressed by cooldown")
		return
	}

	direction := classifyChange(change)
	note := alerting.Notification{
		Kind:         alerting.KindPriceMove,
		At:           at,
		Symbol:       symbol,
		PriceUSD:     decimal.NewFromFloat(q.Price),
		Change24hPct: change,
		ThresholdPct: s.threshold,
		Direction:    direction,
		Channels:     s.channels,
	}
	if s.alertStore != nil {
		record := storage.AlertRecord{
			Symbol:       symbol,
			Change24hPct: change,
			ThresholdPct: s.threshold,
			Direction:    direction,
			Channels:     s.channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to persist alert record")
		}
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to dispatch alert")
		return
	}

	s.mu.Lock()
	s.lastAlert[symbol] = s.now()
	s.mu.Unlock()
}

func (s *Service) coolingDown(ctx context.Context, symbol string) bool {
	if s.cooldown <= 0 {
		return false
	}
	cutoff := s.now().Add(-s.cooldown)

	s.mu.Lock()
	last, ok := s.lastAlert[symbol]
	s.mu.Unlock()
	if ok && last.After(cutoff) {
		return true
	}

	if s.alertStore == nil {
		return false
	}
	stored, ok, err := s.alertStore.LastAlertAt(ctx, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to read last alert")
		return false
	}
	return ok && stored.After(cutoff)
}

// NotifyTransaction forwards a terminal tracker event when enabled.
func (s *Service) NotifyTransaction(ctx context.Context, e tracker.Event) {
	if !s.notifyTx || s.notifier == nil {
		return
	}
	note := alerting.Notification{
		Kind:          alerting.KindTransaction,
		At:            e.Snapshot.UpdatedAt,
		TxHash:        e.Snapshot.Hash,
		TxStatus:      string(e.Snapshot.Status),
		Owner:         e.Owner,
		Confirmations: e.Snapshot.Confirmations,
		TxError:       e.Snapshot.Error,
		Channels:      s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("hash", e.Snapshot.Hash).Msg("failed to dispatch transaction notification")
	}
}

func classifyChange(d decimal.Decimal) string {
	switch d.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
