package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"playback-session/internal/platform/metrics"
)

// PositionSync persists playback position to the backend under a debounced,
// at-most-one-concurrent-write policy. It is a last-value-wins sampler, not
// a queue: ticks arriving inside the write interval, or while a write is in
// flight, are dropped.
//
// The first write for a (viewer, content) binding is a create; once the
// create returns a record id, every later write is an update addressed by
// that id. A second create is never issued for the same binding, and an
// update is never issued without a known record id.
//
// Write failures are logged and swallowed; position persistence is
// best-effort and must never interrupt playback.
type PositionSync struct {
	backend Backend
	log     *slog.Logger
	metrics *metrics.Metrics

	minInterval time.Duration
	minProgress float64
	now         func() time.Time

	mu          sync.Mutex
	gen         uint64
	bound       bool
	closed      bool
	viewerID    int64
	ref         ContentReference
	sourceID    int64
	recordID    int64
	lastAttempt time.Time
	inFlight    bool
}

// NewPositionSync returns an unbound PositionSync; Rebind must be called
// before ticks have any effect. minInterval is the minimum real time
// between write attempts, minProgress the position/duration ratio at or
// below which a tick is judged not meaningful yet. Metrics may be nil.
func NewPositionSync(backend Backend, log *slog.Logger, m *metrics.Metrics, minInterval time.Duration, minProgress float64) *PositionSync {
	return &PositionSync{
		backend:     backend,
		log:         log,
		metrics:     m,
		minInterval: minInterval,
		minProgress: minProgress,
		now:         time.Now,
	}
}

// Rebind points the sync at a new (viewer, content, source) binding and
// forgets the previous record id and write window. Position records are
// keyed by content reference, not by session, so every newly resolved
// source starts from create semantics. A viewer id <= 0 leaves the sync
// unbound: anonymous playback is never persisted. Any write still in
// flight for the previous binding is orphaned and its result discarded.
func (p *PositionSync) Rebind(viewerID int64, ref ContentReference, sourceID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.bound = viewerID > 0
	p.viewerID = viewerID
	p.ref = ref
	p.sourceID = sourceID
	p.recordID = 0
	p.lastAttempt = time.Time{}
	p.inFlight = false
}

// Tick consumes one host status sample. Most ticks are dropped; only a
// sample that passes the progress threshold, falls outside the write
// window, and finds no write in flight is persisted.
func (p *PositionSync) Tick(ctx context.Context, positionSeconds, durationSeconds float64) {
	if durationSeconds <= 0 {
		// Duration not known yet.
		return
	}
	if positionSeconds < 0 {
		positionSeconds = 0
	}
	if positionSeconds > durationSeconds {
		positionSeconds = durationSeconds
	}
	if positionSeconds/durationSeconds <= p.minProgress {
		// The viewer merely previewed a few seconds; not worth a record.
		return
	}

	p.mu.Lock()
	if p.closed || !p.bound {
		p.mu.Unlock()
		return
	}
	now := p.now()
	if !p.lastAttempt.IsZero() && now.Sub(p.lastAttempt) < p.minInterval {
		p.mu.Unlock()
		return
	}
	if p.inFlight {
		// Serialize: never a second create for the same binding, never an
		// update before the create's record id is known.
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.lastAttempt = now
	gen := p.gen
	viewerID, ref, sourceID, recordID := p.viewerID, p.ref, p.sourceID, p.recordID
	p.mu.Unlock()

	go p.write(ctx, gen, viewerID, ref, sourceID, recordID, positionSeconds, durationSeconds)
}

// Close permanently stops the sync; the result of any in-flight write is
// discarded. Safe to call multiple times.
func (p *PositionSync) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.gen++
}

func (p *PositionSync) write(ctx context.Context, gen uint64, viewerID int64, ref ContentReference, sourceID, recordID int64, positionSeconds, durationSeconds float64) {
	var (
		newRecordID int64
		err         error
		op          string
	)
	if recordID == 0 {
		op = "create"
		newRecordID, err = p.backend.CreatePosition(ctx, viewerID, ref, sourceID, positionSeconds, durationSeconds)
	} else {
		op = "update"
		err = p.backend.UpdatePosition(ctx, recordID, positionSeconds, durationSeconds)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.closed {
		// The binding changed (or the session was disposed) while this
		// write was in flight; its result must not touch the new binding.
		if p.metrics != nil {
			p.metrics.IncStaleResultsDropped()
		}
		return
	}
	p.inFlight = false

	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPositionWriteFailure()
		}
		p.log.Warn("position write failed",
			slog.String("op", op),
			slog.String("content", ref.String()),
			slog.String("error", err.Error()))
		return
	}

	if recordID == 0 {
		p.recordID = newRecordID
	}
	if p.metrics != nil {
		p.metrics.IncPositionWrite(op)
	}
	p.log.Debug("position persisted",
		slog.String("op", op),
		slog.String("content", ref.String()),
		slog.Float64("position_seconds", positionSeconds))
}
