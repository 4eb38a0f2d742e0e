package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a caller presents a session ID the
	// manager does not know, typically because the session expired.
	ErrNotFound = errors.New("session: not found")

	// ErrTooManySessions is returned when creating a session would exceed
	// the configured cap.
	ErrTooManySessions = errors.New("session: too many active sessions")
)

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// Cooldown is the duration of inactivity after which a session is
	// considered stale and will be removed on the next ExpireStale call.
	// Default: 30 minutes.
	Cooldown time.Duration

	// MaxSessions caps the number of concurrently tracked sessions.
	// Default: 1000.
	MaxSessions int

	// PersonaPrompt seeds each new session's memory and display log.
	PersonaPrompt string
}

// DefaultManagerConfig returns a ManagerConfig with the documented defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Cooldown:    30 * time.Minute,
		MaxSessions: 1000,
	}
}

// Manager tracks live sessions by ID.  It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	config   ManagerConfig
	sessions map[string]*Session
}

// NewManager creates a Manager with the given configuration.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultManagerConfig().Cooldown
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultManagerConfig().MaxSessions
	}
	return &Manager{
		config:   cfg,
		sessions: make(map[string]*Session),
	}
}

// Ensure resolves id to a live session.  An empty id creates a fresh session
// with a new UUID; a non-empty id must name a known session or ErrNotFound
// is returned, so clients learn their session expired instead of silently
// losing history.
func (m *Manager) Ensure(id string) (*Session, error) {
	return m.ensureAt(id, time.Now())
}

// ensureAt is the time-injectable core of Ensure (for testing).
func (m *Manager) ensureAt(id string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		s, ok := m.sessions[id]
		if !ok {
			return nil, ErrNotFound
		}
		return s, nil
	}

	if len(m.sessions) >= m.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	s := newSession(uuid.New().String(), m.config.PersonaPrompt, now)
	m.sessions[s.ID] = s
	return s, nil
}

// ExpireStale removes all sessions whose last committed turn is older than
// the cooldown threshold relative to now.  Returns the IDs of the removed
// sessions.
func (m *Manager) ExpireStale(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := now.Sub(s.lastTurnAt) > m.config.Cooldown
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
