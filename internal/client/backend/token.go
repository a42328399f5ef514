package backend

import (
	"context"
	"sync"
)

// TokenSource provides the bearer credential of the current session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredentials
	}
	return string(t), nil
}

// SessionTokens holds the credential handed over by the login flow.
type SessionTokens struct {
	mu    sync.RWMutex
	token string
}

// NewSessionTokens returns a holder seeded with initial, which may be empty.
func NewSessionTokens(initial string) *SessionTokens {
	return &SessionTokens{token: initial}
}

// Set replaces the credential.
func (s *SessionTokens) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear forgets the credential.
func (s *SessionTokens) Clear() { s.Set("") }

func (s *SessionTokens) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredentials
	}
	return s.token, nil
}
