package memory

import (
	"context"
	"sync"

	"finboard/internal/tokenstore"
)

var _ tokenstore.Store = (*Store)(nil)

// Store keeps the token pair in process memory.
type Store struct {
	mu     sync.Mutex
	tokens tokenstore.Tokens
	writes int
}

func New() *Store {
	return &Store{}
}

// NewWithTokens returns a store pre-seeded with t, as if a previous run had
// persisted it.
func NewWithTokens(t tokenstore.Tokens) *Store {
	return &Store{tokens: t}
}

func (s *Store) Load(_ context.Context) (tokenstore.Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, nil
}

func (s *Store) Save(_ context.Context, t tokenstore.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
	s.writes++
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokenstore.Tokens{}
	s.writes++
	return nil
}

// Writes returns how many Save and Clear calls the store has seen.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
