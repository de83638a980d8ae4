// Package memory is an in-process challenge store used by tests and the
// memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"envelopes/internal/core"
	"envelopes/internal/store"
)

type Store struct {
	mu    sync.Mutex
	items map[string]*core.Challenge
	saves int
}

var (
	_ store.ChallengeStore = (*Store)(nil)
	_ store.CodeLister     = (*Store)(nil)
	_ store.Pinger         = (*Store)(nil)
)

func New() *Store {
	return &Store{items: make(map[string]*core.Challenge)}
}

// Save stores a deep copy of c.
func (s *Store) Save(_ context.Context, code string, c *core.Challenge) error {
	if c == nil {
		return fmt.Errorf("save %s: nil challenge", code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[code] = c.Clone()
	s.saves++
	return nil
}

// Load returns a deep copy of the stored challenge.
func (s *Store) Load(_ context.Context, code string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[code]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", code, store.ErrNotFound)
	}
	return c.Clone(), nil
}

// Delete removes the challenge. Deleting a missing code is not an error.
func (s *Store) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, code)
	return nil
}

// Codes returns stored codes in sorted order.
func (s *Store) Codes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for code := range s.items {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Saves returns how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
