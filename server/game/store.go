package game

import (
	"sync"

	"github.com/google/uuid"
)

type session struct {
	mu    sync.Mutex
	state GameState
}

// Store is the in-memory session registry. The registry lock only guards the
// map; each session carries its own mutex so operations on different sessions
// never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// Create allocates a fresh session with both players attached and returns a
// snapshot. The session goes straight to in_progress: setup is transient and
// collapses here because both profiles are already attached.
func (s *Store) Create(p1, p2 Player) GameState {
	st := GameState{
		SessionID:   uuid.NewString(),
		Player1:     p1,
		Player2:     p2,
		CurrentTurn: Player1,
		Status:      StatusInProgress,
		RoundNumber: 1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[st.SessionID]; exists {
		// 128-bit random ids do not collide within a process lifetime.
		panic("session id collision: " + st.SessionID)
	}
	s.sessions[st.SessionID] = &session{state: st}
	return st.Clone()
}

// Get returns a snapshot copy of the session state.
func (s *Store) Get(id string) (GameState, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return GameState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.Clone(), nil
}

// WithLock runs fn with the session's lock held, passing the live state. This
// is the only path through which session state is mutated; two calls against
// the same session serialize, calls against different sessions do not.
func (s *Store) WithLock(id string, fn func(*GameState) error) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(&sess.state)
}

func (s *Store) lookup(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
