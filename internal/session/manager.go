package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/notify"
)

const DefaultCapacity = 1024

const restoredMsg = "your cart was restored, please sign in again to check out"

func CartKey(sessionID string) string { return "cart:" + sessionID }

// Manager hands out sessions by id. Only the most recently used sessions
// stay in memory; an evicted session's cart survives in the repository and
// is reloaded the next time its id shows up.
type Manager struct {
	repo   cart.Repository
	log    zerolog.Logger
	onOpen func(*Session)

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// OnOpen runs fn for every session the manager builds, before it is handed
// out.
func OnOpen(fn func(*Session)) Option { return func(m *Manager) { m.onOpen = fn } }

func NewManager(repo cart.Repository, capacity int, opts ...Option) (*Manager, error) {
	m := &Manager{repo: repo, log: zerolog.Nop()}
	for _, o := range opts {
		o(m)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.NewWithEvict[string, *Session](capacity, func(id string, s *Session) {
		s.Cart.Close()
		m.log.Debug().Str("session", id).Msg("session evicted")
	})
	if err != nil {
		return nil, err
	}
	m.sessions = cache
	return m, nil
}

// Open returns the session for id, building it (and loading its cart) when it
// is not in memory. An empty or malformed id gets a fresh session.
//
// Sign-in state is never persisted, so a session rebuilt after eviction or a
// restart comes back signed out. When that session still had a cart it gets
// an info notice asking the user to sign in again.
func (m *Manager) Open(ctx context.Context, id string) *Session {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions.Get(id); ok {
		return s
	}
	s := &Session{
		ID:      id,
		Cart:    cart.NewStore(m.repo, CartKey(id), cart.WithLogger(m.log)),
		Notices: notify.NewCenter(notify.DefaultTTL),
	}
	if s.Cart.Refresh(ctx) && s.Cart.TotalItemCount() > 0 {
		s.Notices.Info(restoredMsg)
		m.log.Debug().Str("session", id).Msg("session restored signed out")
	}
	if m.onOpen != nil {
		m.onOpen(s)
	}
	m.sessions.Add(id, s)
	return s
}

func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Get(id)
}

// End signs the session out and discards its cart, durable copy included.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions.Peek(id)
	m.mu.Unlock()
	if !ok {
		st := cart.NewStore(m.repo, CartKey(id), cart.WithLogger(m.log))
		defer st.Close()
		return st.Discard(ctx)
	}
	s.SignOut()
	err := s.Cart.Discard(ctx)
	m.mu.Lock()
	m.sessions.Remove(id)
	m.mu.Unlock()
	return err
}

func (m *Manager) Len() int { return m.sessions.Len() }

// Close flushes every in-memory session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Purge()
}
