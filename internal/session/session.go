package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"playback-session/internal/platform/metrics"
)

// Config holds the tunable policy knobs of the playback core. The defaults
// reproduce long-standing product behavior; change them and a test suite
// built against current behavior will fail.
type Config struct {
	// WriteInterval is the minimum real time between position write attempts.
	WriteInterval time.Duration

	// MinProgress is the position/duration ratio at or below which a tick
	// is not persisted.
	MinProgress float64

	// SlowResolveAfter is how long a resolution may run before the session
	// surfaces "still loading" feedback. Zero disables the timer.
	SlowResolveAfter time.Duration

	// PreferVIPWhenEntitled selects a VIP source over a free one when the
	// viewer already pays for it.
	PreferVIPWhenEntitled bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WriteInterval:         5 * time.Second,
		MinProgress:           0.05,
		SlowResolveAfter:      3 * time.Second,
		PreferVIPWhenEntitled: true,
	}
}

var (
	// ErrDisposed is returned when starting a session that has been disposed.
	ErrDisposed = errors.New("session has been disposed")

	// ErrInvalidReference is returned when the content reference names no
	// known kind or a non-positive id.
	ErrInvalidReference = errors.New("invalid content reference")
)

// Session drives one playback lifecycle: it owns the current
// ContentReference, the observable State, and the single selected Source,
// and coordinates source resolution and position sync.
//
// Every asynchronous operation captures the session generation at launch
// and re-checks it under the lock before mutating state, so a result that
// arrives after the reference changed (or after Dispose) is discarded
// rather than applied. Without this, rapidly switching episodes could let
// an older episode's resolved source silently override the new one.
type Session struct {
	log       *slog.Logger
	metrics   *metrics.Metrics
	resolver  *Resolver
	positions *PositionSync
	slowAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	gen       uint64
	state     State
	ref       ContentReference
	viewerID  int64
	source    Source
	slowTimer *time.Timer
	disposed  bool
	onState   func(State)
}

// New returns an idle session. Metrics may be nil. onState, if non-nil, is
// invoked on every state change with the session lock held; it must not
// call back into the session.
func New(backend Backend, log *slog.Logger, m *metrics.Metrics, cfg Config, onState func(State)) *Session {
	checker := NewEntitlementChecker(backend, log)
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		log:       log,
		metrics:   m,
		resolver:  NewResolver(backend, checker, log, cfg.PreferVIPWhenEntitled),
		positions: NewPositionSync(backend, log, m, cfg.WriteInterval, cfg.MinProgress),
		slowAfter: cfg.SlowResolveAfter,
		ctx:       ctx,
		cancel:    cancel,
		onState:   onState,
	}
}

// Start binds the session to ref and begins resolving a source for it.
// Calling Start again with a different reference is a hard reset: any
// in-flight resolution or position write for the previous reference is
// marked stale and its eventual result ignored.
func (s *Session) Start(ref ContentReference, viewerID int64) error {
	if !ref.Valid() {
		return ErrInvalidReference
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.gen++
	gen := s.gen
	s.ref = ref
	s.viewerID = viewerID
	s.source = Source{}
	s.stopSlowTimerLocked()
	s.setStateLocked(StateIdle)
	s.setStateLocked(StateResolvingSource)
	s.armSlowTimerLocked(gen)
	s.mu.Unlock()

	go s.resolve(gen, ref, viewerID)
	return nil
}

// resolve runs the source resolution off the caller's goroutine and applies
// the result only if the session generation is unchanged.
func (s *Session) resolve(gen uint64, ref ContentReference, viewerID int64) {
	res := s.resolver.Resolve(s.ctx, ref, viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || gen != s.gen {
		if s.metrics != nil {
			s.metrics.IncStaleResultsDropped()
		}
		s.log.Debug("stale resolution discarded", slog.String("content", ref.String()))
		return
	}
	s.stopSlowTimerLocked()
	if s.metrics != nil {
		s.metrics.IncResolution(res.Outcome.String())
	}

	switch res.Outcome {
	case OutcomePlayable:
		s.source = res.Source
		// Position records are keyed by content reference, not by session,
		// so each newly resolved source starts from create semantics.
		s.positions.Rebind(viewerID, ref, res.Source.SourceID)
		s.setStateLocked(StatePlayable)
	case OutcomeSubscriptionRequired:
		s.setStateLocked(StateSubscriptionRequired)
	default:
		s.log.Info("no playable source",
			slog.String("content", ref.String()),
			slog.String("reason", res.Reason.String()))
		s.setStateLocked(StateNotFound)
	}
}

// ReportHostStatus consumes a periodic status tick from the host player:
// it drives the Playable/Playing/Paused transitions and feeds the position
// sync. Ticks are ignored unless a source has been resolved.
func (s *Session) ReportHostStatus(positionSeconds, durationSeconds float64, playing bool) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StatePlayable, StatePaused:
		if playing {
			s.setStateLocked(StatePlaying)
		}
	case StatePlaying:
		if !playing {
			s.setStateLocked(StatePaused)
		}
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.positions.Tick(s.ctx, positionSeconds, durationSeconds)
}

// State returns the current observable state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reference returns the content reference the session is bound to.
func (s *Session) Reference() ContentReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// CurrentSource returns the selected source. ok is false until resolution
// has produced a playable source.
func (s *Session) CurrentSource() (src Source, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePlayable, StatePlaying, StatePaused:
		return s.source, true
	default:
		return Source{}, false
	}
}

// Dispose tears the session down: pending timers are cancelled and all
// in-flight operations marked stale, so no further side effects can be
// observed. Safe to call multiple times.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.gen++
	s.stopSlowTimerLocked()
	s.mu.Unlock()

	s.cancel()
	s.positions.Close()
}

// setStateLocked transitions to st and notifies the observer. Caller must
// hold s.mu.
func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.log.Debug("session state changed",
		slog.String("content", s.ref.String()),
		slog.String("state", st.String()))
	if s.onState != nil {
		s.onState(st)
	}
}

// armSlowTimerLocked starts the elapsed-time counter for "still loading"
// feedback. Caller must hold s.mu.
func (s *Session) armSlowTimerLocked(gen uint64) {
	if s.slowAfter <= 0 {
		return
	}
	s.slowTimer = time.AfterFunc(s.slowAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.disposed || gen != s.gen || s.state != StateResolvingSource {
			return
		}
		s.log.Info("source resolution still in progress",
			slog.String("content", s.ref.String()),
			slog.Duration("elapsed", s.slowAfter))
	})
}

// stopSlowTimerLocked cancels the elapsed-time counter. Caller must hold s.mu.
func (s *Session) stopSlowTimerLocked() {
	if s.slowTimer != nil {
		s.slowTimer.Stop()
		s.slowTimer = nil
	}
}
