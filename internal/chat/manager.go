package chat

import (
	"context"
	"sync"

	"github.com/placehive/placehive-backend/pkg/logger"
)

// Manager owns the live sessions, one per authenticated user. Sessions are
// acquired on first use, refreshed when the user's identity (owned-place
// set) changes, and released on sign-out.
type Manager struct {
	deps SessionDeps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps SessionDeps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the user's session, opening one if needed. An existing
// session gets its identity refreshed so subscriptions follow ownership
// changes.
func (m *Manager) Acquire(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	m.mu.Unlock()

	if ok {
		if err := sess.RefreshIdentity(ctx); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("Session identity refresh failed")
		}
		return sess, nil
	}

	sess = NewSession(userID, m.deps)
	if err := sess.Open(ctx); err != nil {
		sess.Close()
		return nil, err
	}

	m.mu.Lock()
	if existing, raced := m.sessions[userID]; raced {
		// Another request opened a session concurrently; keep the first.
		m.mu.Unlock()
		sess.Close()
		return existing, nil
	}
	m.sessions[userID] = sess
	m.mu.Unlock()
	return sess, nil
}

// Release closes and forgets the user's session (sign-out).
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// CloseAll tears down every session; used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}
