package session

import (
	"context"
	"sync"

	"github.com/ahinestrog/fubooks-storefront/internal/cart"
	"github.com/ahinestrog/fubooks-storefront/internal/catalog"
	"github.com/ahinestrog/fubooks-storefront/internal/notify"
)

// Session is one UI session: its cart, its toasts and who is signed in.
type Session struct {
	ID      string
	Cart    *cart.Store
	Notices *notify.Center

	mu    sync.RWMutex
	token string
	user  *catalog.User
}

func (s *Session) SignIn(auth catalog.AuthResponse) {
	u := auth.User
	s.mu.Lock()
	s.token = auth.Token
	s.user = &u
	s.mu.Unlock()
}

// SignOut forgets the credentials. The cart is left alone.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *catalog.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.IsAdmin()
}

// Context attaches the session's API token to ctx.
func (s *Session) Context(ctx context.Context) context.Context {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok == "" {
		return ctx
	}
	return catalog.WithToken(ctx, tok)
}
