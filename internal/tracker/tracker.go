// Package tracker follows submitted transactions to a confirmation depth.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"fluid-gateway/internal/chain"
)

// Status is a tracker state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSubmitted  Status = "submitted"
	StatusConfirming Status = "confirming"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	// StatusTimedOut means a deadline passed before the outcome was known:
	// either no receipt arrived within ReceiptTimeout, or the confirmation
	// ceiling passed before the required depth was observed. The
	// transaction may still mine or confirm later.
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether polling has stopped for s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusTimedOut
}

// Settled reports whether s is a final on-chain outcome.
func (s Status) Settled() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Snapshot is the observable tracker state.
type Snapshot struct {
	Hash          string    `json:"hash"`
	Status        Status    `json:"status"`
	Confirmations uint64    `json:"confirmations"`
	BlockNumber   *uint64   `json:"blockNumber"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Options tune polling.
type Options struct {
	PollInterval          time.Duration
	RequiredConfirmations uint64
	// MaxConfirmWait bounds the confirming phase.
	MaxConfirmWait time.Duration
	ReceiptTimeout time.Duration
	// ForceConfirmOnTimeout reports confirmed instead of timed_out when
	// MaxConfirmWait elapses.
	ForceConfirmOnTimeout bool
}

// Tracker drives one transaction at a time through the state machine.
type Tracker struct {
	receipts chain.ReceiptReader
	heights  chain.BlockHeightReader
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New builds a tracker with defaults for zero options.
func New(receipts chain.ReceiptReader, heights chain.BlockHeightReader, opts Options, logger zerolog.Logger) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RequiredConfirmations == 0 {
		opts.RequiredConfirmations = 3
	}
	if opts.MaxConfirmWait <= 0 {
		opts.MaxConfirmWait = 30 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	return &Tracker{
		receipts: receipts,
		heights:  heights,
		opts:     opts,
		logger:   logger.With().Str("component", "tracker").Logger(),
		now:      time.Now,
	}
}

// Track follows hash until a terminal state or ctx cancellation, calling
// onUpdate on every state or depth change. It returns the last snapshot.
func (t *Tracker) Track(ctx context.Context, hash common.Hash, onUpdate func(Snapshot)) Snapshot {
	snap := Snapshot{Hash: hash.Hex(), Status: StatusSubmitted, UpdatedAt: t.now().UTC()}
	emit := func() {
		snap.UpdatedAt = t.now().UTC()
		if onUpdate != nil {
			onUpdate(snap)
		}
	}
	emit()

	receiptCtx, cancel := context.WithTimeout(ctx, t.opts.ReceiptTimeout)
	receipt, err := chain.WaitReceipt(receiptCtx, t.receipts, hash, t.opts.PollInterval)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return snap
		}
		if errors.Is(err, context.DeadlineExceeded) {
			snap.Status = StatusTimedOut
			snap.Error = fmt.Sprintf("no receipt after %s", t.opts.ReceiptTimeout)
		} else {
			snap.Status = StatusFailed
			snap.Error = err.Error()
		}
		emit()
		return snap
	}

	if receipt.BlockNumber == nil {
		snap.Status = StatusFailed
		snap.Error = "receipt has no block number"
		emit()
		return snap
	}
	block := receipt.BlockNumber.Uint64()
	snap.BlockNumber = &block

	if receipt.Status != types.ReceiptStatusSuccessful {
		snap.Status = StatusFailed
		snap.Error = "transaction reverted"
		emit()
		return snap
	}

	snap.Status = StatusConfirming
	snap.Confirmations = 1
	if snap.Confirmations >= t.opts.RequiredConfirmations {
		snap.Status = StatusConfirmed
	}
	emit()
	if snap.Status.Terminal() {
		return snap
	}

	return t.confirm(ctx, block, &snap, emit)
}

func (t *Tracker) confirm(ctx context.Context, block uint64, snap *Snapshot, emit func()) Snapshot {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	ceiling := time.NewTimer(t.opts.MaxConfirmWait)
	defer ceiling.Stop()

	for {
		select {
		case <-ctx.Done():
			return *snap

		case <-ceiling.C:
			if t.opts.ForceConfirmOnTimeout {
				snap.Status = StatusConfirmed
				t.logger.Warn().Str("hash", snap.Hash).Uint64("confirmations", snap.Confirmations).Msg("confirmation ceiling reached; forcing confirmed")
			} else {
				snap.Status = StatusTimedOut
				snap.Error = fmt.Sprintf("%d of %d confirmations after %s", snap.Confirmations, t.opts.RequiredConfirmations, t.opts.MaxConfirmWait)
			}
			emit()
			return *snap

		case <-ticker.C:
			height, err := t.heights.BlockNumber(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return *snap
				}
				t.logger.Warn().Err(err).Str("hash", snap.Hash).Msg("block height poll failed")
				continue
			}
			if height < block {
				continue
			}
			confirmations := height - block + 1
			if confirmations <= snap.Confirmations {
				continue
			}
			snap.Confirmations = confirmations
			if confirmations >= t.opts.RequiredConfirmations {
				snap.Status = StatusConfirmed
				emit()
				return *snap
			}
			emit()
		}
	}
}
