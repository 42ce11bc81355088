package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/custodia-labs/docqa/internal/core/domain"
)

// Session is one conversation. It owns its history exclusively.
type Session struct {
	ID string

	mu       sync.Mutex
	turns    []domain.ConversationTurn
	size     int
	maxChars int
	maxTurns int
}

// NewSession creates a session whose history is bounded by maxChars across
// all turns and by maxTurns. Non-positive limits disable that bound.
func NewSession(id string, maxChars, maxTurns int) *Session {
	return &Session{ID: id, maxChars: maxChars, maxTurns: maxTurns}
}

// Append records a completed turn and evicts the oldest turns until the
// history fits its budget. The newest turn is always retained, even when it
// alone exceeds the character budget.
func (s *Session) Append(turn domain.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	s.size += turn.Size()

	for len(s.turns) > 1 && s.overBudget() {
		s.size -= s.turns[0].Size()
		s.turns[0] = domain.ConversationTurn{}
		s.turns = s.turns[1:]
	}
}

func (s *Session) overBudget() bool {
	if s.maxChars > 0 && s.size > s.maxChars {
		return true
	}
	return s.maxTurns > 0 && len(s.turns) > s.maxTurns
}

// Turns returns a copy of the retained history, oldest first.
func (s *Session) Turns() []domain.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Recent returns up to n of the newest successful turns, oldest first.
func (s *Session) Recent(n int) []domain.ConversationTurn {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ConversationTurn
	for i := len(s.turns) - 1; i >= 0 && len(out) < n; i-- {
		if !s.turns[i].Failed {
			out = append(out, s.turns[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Size returns the character total of the retained history.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// SessionRegistry maps conversation IDs to sessions. Sessions not used for
// the idle timeout expire.
type SessionRegistry struct {
	mu       sync.Mutex
	cache    *cache.Cache
	maxChars int
	maxTurns int
}

// NewSessionRegistry creates a registry. idle <= 0 keeps sessions forever.
func NewSessionRegistry(h domain.HistorySettings) *SessionRegistry {
	idle := h.IdleTimeout
	cleanup := idle / 6
	if idle <= 0 {
		idle = cache.NoExpiration
		cleanup = 0
	} else if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &SessionRegistry{
		cache:    cache.New(idle, cleanup),
		maxChars: h.MaxChars,
		maxTurns: h.MaxTurns,
	}
}

// Get returns the session for id, creating it if needed. An empty id mints
// a new conversation.
func (r *SessionRegistry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if x, found := r.cache.Get(id); found {
		s := x.(*Session)
		r.cache.Set(id, s, cache.DefaultExpiration)
		return s
	}

	s := NewSession(id, r.maxChars, r.maxTurns)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s
}

// Lookup returns an existing session without creating one.
func (r *SessionRegistry) Lookup(id string) (*Session, bool) {
	if x, found := r.cache.Get(id); found {
		return x.(*Session), true
	}
	return nil, false
}

// Delete discards a session.
func (r *SessionRegistry) Delete(id string) {
	r.cache.Delete(id)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.cache.ItemCount()
}
