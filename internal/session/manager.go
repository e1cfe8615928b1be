package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"playback-session/internal/platform/metrics"
)

// Manager is the concurrency-safe registry of live playback sessions. Each
// session is addressed by a server-assigned opaque id.
type Manager struct {
	backend Backend
	log     *slog.Logger
	metrics *metrics.Metrics
	cfg     Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a manager that builds sessions over backend with
// the given config. Metrics may be nil.
func NewManager(backend Backend, log *slog.Logger, m *metrics.Metrics, cfg Config) *Manager {
	return &Manager{
		backend:  backend,
		log:      log,
		metrics:  m,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open creates a new session bound to ref and starts resolving immediately.
func (m *Manager) Open(ref ContentReference, viewerID int64) (string, *Session, error) {
	s := New(m.backend, m.log, m.metrics, m.cfg, nil)
	if err := s.Start(ref, viewerID); err != nil {
		s.Dispose()
		return "", nil, err
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return id, s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Dispose tears down and forgets the session with the given id. Disposing
// an unknown id is a no-op for idempotency.
func (m *Manager) Dispose(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Dispose()
	}
}

// ActiveSessionCount returns the number of registered sessions.
// Used for metrics.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// DisposeAll tears down every registered session. Called on shutdown.
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
}
