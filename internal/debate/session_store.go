// internal/debate/session_store.go
package debate

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore is the authoritative registry of active sessions. A session
// exists exactly while it is present here; terminal sessions are removed,
// never flagged.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewSessionStore returns an empty registry.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Add registers a session.
func (st *SessionStore) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Get retrieves a session by id.
func (st *SessionStore) Get(id uuid.UUID) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete removes a session by id. Removing an absent session is a no-op;
// sessions may already have been removed by natural completion.
func (st *SessionStore) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// SessionsFor returns every active session holding connID as a participant.
// Used by the disconnect sweep.
func (st *SessionStore) SessionsFor(connID uuid.UUID) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*Session
	for _, s := range st.sessions {
		if s.HasParticipant(connID) {
			out = append(out, s)
		}
	}
	return out
}

// Len reports the number of active sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
