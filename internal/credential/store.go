package credential

import (
	"context"
	"strings"
	"sync"
)

// Compile-time check that Store implements Provider.
var _ Provider = (*Store)(nil)

// Store is an in-memory Provider holding a single key.
type Store struct {
	mu  sync.RWMutex
	key string
}

// NewStore creates a Store seeded with key, which may be empty.
func NewStore(key string) *Store {
	return &Store{key: strings.TrimSpace(key)}
}

// HasSelectedKey reports whether a non-blank key is held.
func (s *Store) HasSelectedKey(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != "", nil
}

// OpenSelectKey replaces the held key.
func (s *Store) OpenSelectKey(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrBlankKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	return nil
}

// APIKey returns the held key or ErrNoCredential.
func (s *Store) APIKey(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == "" {
		return "", ErrNoCredential
	}
	return s.key, nil
}
