package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fluid-gateway/internal/alerting"
	"fluid-gateway/internal/pricefeed"
	"fluid-gateway/internal/storage"
	"fluid-gateway/internal/tracker"
)

type memStore struct {
	mu        sync.Mutex
	snapshots []storage.PriceSnapshot
	alerts    []storage.AlertRecord
	lockHeld  bool
	unlocked  int
}

func (m *memStore) InsertPriceSnapshots(_ context.Context, snaps []storage.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snaps...)
	return nil
}

func (m *memStore) ListSnapshotsBetween(context.Context, string, time.Time, time.Time) ([]storage.PriceSnapshot, error) {
	return nil, nil
}

func (m *memStore) ListRecentSnapshots(context.Context, string, int) ([]storage.PriceSnapshot, error) {
	return nil, nil
}

func (m *memStore) InsertAlert(_ context.Context, a storage.AlertRecord) (storage.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *memStore) LastAlertAt(_ context.Context, symbol string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if m.alerts[i].Symbol == symbol {
			return m.alerts[i].CreatedAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

func (m *memStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if m.lockHeld {
		return nil, false, nil
	}
	return func() { m.unlocked++ }, true, nil
}

type captureNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n alerting.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
	return nil
}

func result(change float64) pricefeed.Result {
	return pricefeed.Result{
		Prices: pricefeed.Prices{
			"ETH":  {Price: 2750, Change24h: change},
			"USDT": {Price: 1, Change24h: 0.01},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func newService(store *memStore, notifier alerting.Notifier) *Service {
	return New(Options{
		AlertsEnabled: true,
		ThresholdPct:  10,
		Cooldown:      time.Hour,
		NotifyTx:      true,
		LockKey:       42,
	}, nil, store, store, notifier, zerolog.Nop())
}

func TestProcessResultPersistsAndAlerts(t *testing.T) {
	store := &memStore{}
	notifier := &captureNotifier{}
	svc := newService(store, notifier)

	if err := svc.ProcessResult(context.Background(), result(-12.5)); err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 2 || store.snapshots[0].Symbol != "ETH" {
		t.Fatalf("expected sorted snapshots for both symbols, got %#v", store.snapshots)
	}
	if store.unlocked != 1 {
		t.Fatal("advisory lock should be released")
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected one alert, got %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.Symbol != "ETH" || note.Direction != "down" || note.Kind != alerting.KindPriceMove {
		t.Fatalf("unexpected alert %#v", note)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("alert should be persisted, got %d", len(store.alerts))
	}

	// cooldown suppresses a repeat
	if err := svc.ProcessResult(context.Background(), result(15)); err != nil {
		t.Fatal(err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("cooldown should suppress repeat alerts, got %d", len(notifier.notes))
	}

	// a fresh instance sees the persisted alert
	other := newService(store, notifier)
	if err := other.ProcessResult(context.Background(), result(15)); err != nil {
		t.Fatal(err)
	}
	if len(notifier.notes) != 1 {
		t.Fatal("persisted alerts should count toward the cooldown")
	}
}

func TestProcessResultBelowThresholdAndFallback(t *testing.T) {
	store := &memStore{}
	notifier := &captureNotifier{}
	svc := newService(store, notifier)

	_ = svc.ProcessResult(context.Background(), result(9.99))
	fallback := result(50)
	fallback.UsingFallback = true
	_ = svc.ProcessResult(context.Background(), fallback)

	if len(notifier.notes) != 0 {
		t.Fatalf("expected no alerts, got %#v", notifier.notes)
	}
	if !store.snapshots[len(store.snapshots)-1].UsingFallback {
		t.Fatal("fallback flag should be persisted")
	}
}

func TestProcessResultSkipsWithoutLock(t *testing.T) {
	store := &memStore{lockHeld: true}
	notifier := &captureNotifier{}
	svc := newService(store, notifier)

	if err := svc.ProcessResult(context.Background(), result(20)); err != nil {
		t.Fatal(err)
	}
	if len(store.snapshots) != 0 || len(notifier.notes) != 0 {
		t.Fatal("instances without the lock must not write or alert")
	}
}

func TestNotifyTransaction(t *testing.T) {
	notifier := &captureNotifier{}
	svc := newService(&memStore{}, notifier)

	svc.NotifyTransaction(context.Background(), tracker.Event{
		Owner:    "0xowner",
		Snapshot: tracker.Snapshot{Hash: "0xabc", Status: tracker.StatusTimedOut, Confirmations: 1},
	})
	if len(notifier.notes) != 1 || notifier.notes[0].TxStatus != "timed_out" {
		t.Fatalf("unexpected notifications %#v", notifier.notes)
	}
}

func TestRunRequiresAdapter(t *testing.T) {
	svc := newService(&memStore{}, nil)
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("run without adapter should fail")
	}
}
