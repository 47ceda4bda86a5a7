package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxIdle is how long a session may sit untouched before Sweep
// removes it.
const DefaultMaxIdle = 1 * time.Hour

// Manager owns the live sessions by ID. No state is shared across sessions;
// the manager only maps IDs to exclusively-owned Session values.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new empty session and returns it.
func (m *Manager) Create() *Session {
	s := &Session{
		id:         uuid.NewString(),
		createdAt:  time.Now(),
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	log.Debug().Str("session", s.id).Msg("Session created")
	return s
}

// Get returns the session with the given ID, or nil if it does not exist.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Remove deletes the session with the given ID.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed. Pending sessions are kept: their completion still needs a
// session to re-enter.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := !s.pending && s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		log.Info().Int("count", removed).Msg("Swept idle sessions")
	}
	return removed
}
