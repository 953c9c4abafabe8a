package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const keyPrefix = "fld_transactions_"

var (
	// ErrRecordNotFound is returned when no record carries the hash.
	ErrRecordNotFound = errors.New("transaction record not found")
	// ErrStatusRegression is returned when an update would move a settled record backwards.
	ErrStatusRegression = errors.New("transaction status cannot move backwards")
)

// Key is the storage key of address's log.
func Key(address string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(address))
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Type   Type
	Status Status
}

func (f Filter) match(r Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// StatusUpdate settles a record. Nil fields are left unchanged.
type StatusUpdate struct {
	Status      Status
	BlockNumber *uint64
	GasUsed     *string
}

// Log is a newest-first transaction list per address. Writers in this process
// are serialised; separate processes sharing a store can still lose updates.
type Log struct {
	kv     KV
	logger zerolog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewLog builds a log over kv.
func NewLog(kv KV, logger zerolog.Logger) *Log {
	return &Log{kv: kv, logger: logger.With().Str("component", "history").Logger(), now: time.Now}
}

// Add prepends rec to address's log. Hashes are not de-duplicated.
func (l *Log) Add(ctx context.Context, address string, rec Record) (Record, error) {
	if rec.Hash == "" {
		return Record{}, errors.New("record hash is required")
	}
	typ, err := ParseType(string(rec.Type))
	if err != nil {
		return Record{}, err
	}
	rec.Type = typ
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	status, err := ParseStatus(string(rec.Status))
	if err != nil {
		return Record{}, err
	}
	rec.Status = status
	if rec.Timestamp == 0 {
		rec.Timestamp = l.now().UnixMilli()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx, address)
	if err != nil {
		return Record{}, err
	}
	records = append([]Record{rec}, records...)
	if err := l.save(ctx, address, records); err != nil {
		return Record{}, err
	}

	l.logger.Debug().Str("address", address).Str("hash", rec.Hash).Str("type", string(rec.Type)).Msg("transaction recorded")
	return rec, nil
}

// List returns address's records in stored order, filtered by f.
func (l *Log) List(ctx context.Context, address string, f Filter) ([]Record, error) {
	records, err := l.load(ctx, address)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateStatus settles the newest record with hash. Only pending records may
// change status, and only to success or failed.
func (l *Log) UpdateStatus(ctx context.Context, address, hash string, upd StatusUpdate) (Record, error) {
	status, err := ParseStatus(string(upd.Status))
	if err != nil {
		return Record{}, err
	}
	upd.Status = status

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx, address)
	if err != nil {
		return Record{}, err
	}

	for i := range records {
		if !strings.EqualFold(records[i].Hash, hash) {
			continue
		}
		rec := &records[i]
		if !rec.Status.canMoveTo(upd.Status) {
			return *rec, fmt.Errorf("%w: %s -> %s", ErrStatusRegression, rec.Status, upd.Status)
		}
		rec.Status = upd.Status
		if upd.BlockNumber != nil {
			rec.BlockNumber = upd.BlockNumber
		}
		if upd.GasUsed != nil {
			rec.GasUsed = upd.GasUsed
		}
		if err := l.save(ctx, address, records); err != nil {
			return Record{}, err
		}
		return *rec, nil
	}
	return Record{}, ErrRecordNotFound
}

// Clear empties address's log.
func (l *Log) Clear(ctx context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(ctx, address, []Record{})
}

func (l *Log) load(ctx context.Context, address string) ([]Record, error) {
	raw, ok, err := l.kv.Get(ctx, Key(address))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return records, nil
}

func (l *Log) save(ctx context.Context, address string, records []Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := l.kv.Set(ctx, Key(address), raw); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
