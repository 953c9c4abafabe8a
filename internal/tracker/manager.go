package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"fluid-gateway/internal/history"
	"fluid-gateway/internal/metrics"
)

// Event is a terminal tracker outcome.
type Event struct {
	Owner    string
	Snapshot Snapshot
}

// ManagerOptions wire optional collaborators.
type ManagerOptions struct {
	// History receives status updates for the owner's record on terminal snapshots.
	History *history.Log
	// OnTerminal is called once per tracked hash with its final snapshot.
	OnTerminal func(context.Context, Event)
	// Retention keeps finished jobs queryable for this long.
	Retention time.Duration
	Metrics   *metrics.Metrics
}

type job struct {
	owner      string
	snap       Snapshot
	subs       map[int]chan Snapshot
	nextSub    int
	cancel     context.CancelFunc
	finishedAt time.Time
}

// Manager runs one tracker goroutine per hash.
type Manager struct {
	tracker *Tracker
	opts    ManagerOptions
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[common.Hash]*job
}

// NewManager builds a manager. Close stops every running job.
func NewManager(tracker *Tracker, opts ManagerOptions, logger zerolog.Logger) *Manager {
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tracker: tracker,
		opts:    opts,
		logger:  logger.With().Str("component", "tracker_manager").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[common.Hash]*job),
	}
}

// Track starts following hash on behalf of owner, whose history record is
// settled on completion. Tracking a running or settled hash returns its
// state; a stopped or timed out job is started again.
func (m *Manager) Track(hash common.Hash, owner string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	if j, ok := m.jobs[hash]; ok {
		if j.finishedAt.IsZero() || j.snap.Status.Settled() {
			return j.snap
		}
		delete(m.jobs, hash)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{
		owner:  owner,
		snap:   Snapshot{Hash: hash.Hex(), Status: StatusPending, UpdatedAt: time.Now().UTC()},
		subs:   make(map[int]chan Snapshot),
		cancel: cancel,
	}
	m.jobs[hash] = j
	m.opts.Metrics.TrackStarted()

	m.wg.Add(1)
	go m.run(ctx, hash, j)
	return j.snap
}

func (m *Manager) run(ctx context.Context, hash common.Hash, j *job) {
	defer m.wg.Done()
	defer j.cancel()

	final := m.tracker.Track(ctx, hash, func(s Snapshot) {
		m.publish(j, s)
	})

	m.mu.Lock()
	j.snap = final
	j.finishedAt = time.Now()
	for id, ch := range j.subs {
		deliver(ch, final)
		close(ch)
		delete(j.subs, id)
	}
	m.mu.Unlock()

	status := string(final.Status)
	if !final.Status.Terminal() {
		status = "cancelled"
	}
	m.opts.Metrics.TrackFinished(status)

	if !final.Status.Terminal() {
		return
	}

	// Settle with a fresh context so Stop or Close cannot abort the write.
	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.settleHistory(settleCtx, j.owner, final)
	if m.opts.OnTerminal != nil {
		m.opts.OnTerminal(settleCtx, Event{Owner: j.owner, Snapshot: final})
	}
}

func (m *Manager) settleHistory(ctx context.Context, owner string, snap Snapshot) {
	if m.opts.History == nil || owner == "" {
		return
	}
	var status history.Status
	switch snap.Status {
	case StatusConfirmed:
		status = history.StatusSuccess
	case StatusFailed:
		status = history.StatusFailed
	default:
		return
	}

	_, err := m.opts.History.UpdateStatus(ctx, owner, snap.Hash, history.StatusUpdate{Status: status, BlockNumber: snap.BlockNumber})
	switch {
	case err == nil:
		m.logger.Debug().Str("hash", snap.Hash).Str("status", string(status)).Msg("history record settled")
	case errors.Is(err, history.ErrRecordNotFound):
		m.logger.Debug().Str("hash", snap.Hash).Str("owner", owner).Msg("no history record to settle")
	default:
		m.logger.Warn().Err(err).Str("hash", snap.Hash).Msg("failed to settle history record")
	}
}

func (m *Manager) publish(j *job, s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.snap = s
	for _, ch := range j.subs {
		deliver(ch, s)
	}
}

// deliver never blocks; a slow subscriber loses intermediate snapshots but
// always sees the latest one.
func deliver(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Status returns the latest snapshot of hash.
func (m *Manager) Status(hash common.Hash) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[hash]
	if !ok {
		return Snapshot{}, false
	}
	return j.snap, true
}

// Subscribe streams snapshots of hash, starting with the current one. The
// channel closes after the final snapshot. Call the returned func to detach.
func (m *Manager) Subscribe(hash common.Hash) (<-chan Snapshot, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[hash]
	if !ok {
		return nil, func() {}, false
	}

	ch := make(chan Snapshot, 8)
	ch <- j.snap
	if !j.finishedAt.IsZero() {
		close(ch)
		return ch, func() {}, true
	}

	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe, true
}

// Stop cancels tracking of hash. It reports whether a running job was stopped.
func (m *Manager) Stop(hash common.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[hash]
	if !ok || !j.finishedAt.IsZero() {
		return false
	}
	j.cancel()
	return true
}

// Close stops every job and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Wait blocks until every running job has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) pruneLocked() {
	cutoff := time.Now().Add(-m.opts.Retention)
	for hash, j := range m.jobs {
		if !j.finishedAt.IsZero() && j.finishedAt.Before(cutoff) {
			delete(m.jobs, hash)
		}
	}
}
