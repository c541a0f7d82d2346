// Package portal is the HTTP surface the web UI drives. Each browser
// session maps to one workflow session holding the booking form state.
package portal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dangkhoa18052004/spa-portal/internal/booking"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

const defaultSessionTTL = 2 * time.Hour

// Session is one operator's workflow state. The mutex serializes every
// access to the selection; handlers never touch it directly.
type Session struct {
	ID    string
	Owner string

	mu        sync.Mutex
	selection *booking.Selection
	lastSeen  time.Time
}

// With runs fn while holding the session lock.
func (s *Session) With(fn func(sel *booking.Selection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.selection)
}

// SessionStore owns the live sessions and expires idle ones.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *logging.Logger
}

// NewSessionStore creates the store. A zero TTL falls back to two hours.
func NewSessionStore(ttl time.Duration, logger *logging.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionStore{
		sessions: map[string]*Session{},
		ttl:      ttl,
		logger:   logger,
	}
}

// Create opens a session for the owner over the loaded catalog.
func (st *SessionStore) Create(owner string, catalog []spaapi.Service) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		selection: booking.NewSelection(catalog),
		lastSeen:  time.Now(),
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session and refreshes its idle timer. Sessions are
// private to their owner.
func (st *SessionStore) Get(id, owner string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok || s.Owner != owner {
		return nil, false
	}
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
	return s, true
}

// Delete drops a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Sweep removes idle sessions until the context ends.
func (st *SessionStore) Sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.expire(time.Now())
		}
	}
}

func (st *SessionStore) expire(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen)
		s.mu.Unlock()
		if idle > st.ttl {
			delete(st.sessions, id)
			st.logger.Info("session expired", "session_id", id, "owner", s.Owner)
		}
	}
}
