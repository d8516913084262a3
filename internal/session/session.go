package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"courserag/internal/domain"
)

type session struct {
	mu      sync.Mutex
	turn    sync.Mutex
	history []domain.Exchange
}

// Manager keeps bounded conversation history per session id.
type Manager struct {
	mu         sync.Mutex
	items      *cache.Cache
	maxHistory int
	ttl        time.Duration
}

// New returns a manager keeping at most maxHistory exchanges per session.
// A zero ttl keeps sessions until the process exits; otherwise a session
// expires ttl after its last use.
func New(maxHistory int, ttl time.Duration) *Manager {
	if maxHistory <= 0 {
		maxHistory = 2
	}
	expiry, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiry, cleanup = ttl, ttl
	}
	return &Manager{
		items:      cache.New(expiry, cleanup),
		maxHistory: maxHistory,
		ttl:        expiry,
	}
}

func (m *Manager) CreateSession() string {
	id := uuid.NewString()
	m.items.Set(id, &session{}, m.ttl)
	return id
}

// Exists reports whether id is a live session.
func (m *Manager) Exists(id string) bool {
	_, ok := m.items.Get(id)
	return ok
}

func (m *Manager) lookup(id string, create bool) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items.Get(id); ok {
		s := v.(*session)
		m.items.Set(id, s, m.ttl)
		return s
	}
	if !create {
		return nil
	}
	s := &session{}
	m.items.Set(id, s, m.ttl)
	return s
}

// AddExchange appends a question and answer, evicting the oldest pair once
// the session holds more than maxHistory. Unknown ids start a new session.
func (m *Manager) AddExchange(id, query, answer string) {
	s := m.lookup(id, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, domain.Exchange{Query: query, Answer: answer})
	if over := len(s.history) - m.maxHistory; over > 0 {
		s.history = append([]domain.Exchange(nil), s.history[over:]...)
	}
}

// History returns a copy of the stored exchanges, oldest first.
func (m *Manager) History(id string) []domain.Exchange {
	s := m.lookup(id, false)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	return append([]domain.Exchange(nil), s.history...)
}

// FormattedHistory renders the history as alternating User/Assistant lines,
// or "" when there is none.
func (m *Manager) FormattedHistory(id string) string {
	return Format(m.History(id))
}

func Format(history []domain.Exchange) string {
	lines := make([]string, 0, 2*len(history))
	for _, ex := range history {
		lines = append(lines, "User: "+ex.Query, "Assistant: "+ex.Answer)
	}
	return strings.Join(lines, "\n")
}

// Acquire takes the session's query lock and returns its release func.
func (m *Manager) Acquire(id string) func() {
	s := m.lookup(id, true)
	s.turn.Lock()
	return s.turn.Unlock
}

// Clear drops the history of id while keeping the session alive.
func (m *Manager) Clear(id string) {
	if s := m.lookup(id, false); s != nil {
		s.mu.Lock()
		s.history = nil
		s.mu.Unlock()
	}
}

func (m *Manager) Count() int {
	return m.items.ItemCount()
}
