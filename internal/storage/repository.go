package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fluid-gateway/internal/history"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const (
	getKVSQL = `SELECT value FROM kv_entries WHERE key = $1;`

	setKVSQL = `INSERT INTO kv_entries (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at;`

	insertSnapshotSQL = `INSERT INTO price_snapshots (
        symbol,
        price_usd,
        change_24h_pct,
        using_fallback,
        captured_at
    ) VALUES ($1,$2,$3,$4,$5);`

	listSnapshotsBetweenSQL = `SELECT
        id,
        symbol,
        price_usd::text,
        change_24h_pct::text,
        using_fallback,
        captured_at
    FROM price_snapshots
    WHERE symbol = $1
      AND captured_at >= $2
      AND captured_at < $3
    ORDER BY captured_at;`

	listRecentSnapshotsSQL = `SELECT
        id,
        symbol,
        price_usd::text,
        change_24h_pct::text,
        using_fallback,
        captured_at
    FROM price_snapshots
    WHERE symbol = $1
    ORDER BY captured_at DESC
    LIMIT $2;`

	insertAlertSQL = `INSERT INTO price_alerts (
        symbol,
        change_24h_pct,
        threshold_pct,
        direction,
        channels
    ) VALUES ($1,$2,$3,$4,$5)
    RETURNING id, created_at;`

	lastAlertSQL = `SELECT created_at FROM price_alerts
    WHERE symbol = $1
    ORDER BY created_at DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore persists price snapshots.
type SnapshotStore interface {
	InsertPriceSnapshots(ctx context.Context, snapshots []PriceSnapshot) error
	ListSnapshotsBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceSnapshot, error)
	ListRecentSnapshots(ctx context.Context, symbol string, limit int) ([]PriceSnapshot, error)
}

// AlertStore records emitted alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	LastAlertAt(ctx context.Context, symbol string) (time.Time, bool, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the Postgres backend for history, snapshots and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Get reads a history document.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}
	var value []byte
	if err := pool.QueryRow(ctx, getKVSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get kv: %w", err)
	}
	return value, true, nil
}

// Set upserts a history document.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, setKVSQL, key, string(value)); err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}

// InsertPriceSnapshots writes every snapshot in one batch.
func (s *Store) InsertPriceSnapshots(ctx context.Context, snapshots []PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(insertSnapshotSQL,
			snap.Symbol,
			snap.PriceUSD.String(),
			snap.Change24hPct.String(),
			snap.UsingFallback,
			snap.CapturedAt,
		)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert price snapshots: %w", err)
	}
	return nil
}

// ListSnapshotsBetween lists one symbol's snapshots within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	return collectSnapshots(rows)
}

// ListRecentSnapshots lists the newest snapshots of symbol, newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, symbol string, limit int) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	return collectSnapshots(rows)
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}
	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Symbol,
		alert.Change24hPct.String(),
		alert.ThresholdPct.String(),
		alert.Direction,
		channels,
	)
	if err := row.Scan(&alert.ID, &alert.CreatedAt); err != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// LastAlertAt returns when symbol last alerted.
func (s *Store) LastAlertAt(ctx context.Context, symbol string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}
	var at time.Time
	if err := pool.QueryRow(ctx, lastAlertSQL, symbol).Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last alert: %w", err)
	}
	return at, true, nil
}

func collectSnapshots(rows pgx.Rows) ([]PriceSnapshot, error) {
	defer rows.Close()

	snapshots := make([]PriceSnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanSnapshot(rows pgx.Rows) (PriceSnapshot, error) {
	var (
		snap      PriceSnapshot
		priceStr  string
		changeStr string
	)
	if err := rows.Scan(
		&snap.ID,
		&snap.Symbol,
		&priceStr,
		&changeStr,
		&snap.UsingFallback,
		&snap.CapturedAt,
	); err != nil {
		return PriceSnapshot{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse price: %w", err)
	}
	change, err := decimal.NewFromString(changeStr)
	if err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse change: %w", err)
	}
	snap.PriceUSD = price
	snap.Change24hPct = change
	return snap, nil
}

var (
	_ history.KV     = (*Store)(nil)
	_ SnapshotStore  = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
