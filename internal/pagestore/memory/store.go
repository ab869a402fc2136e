// Package memory stores raw pages in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/revloop/revloop/internal/taxonomy"
)

// Store keeps raw page bytes keyed by their URL-derived object key.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory page store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// PutPage persists the page body and returns a pseudo URI.
func (s *Store) PutPage(_ context.Context, url string, body []byte) (string, error) {
	key := taxonomy.PageKey(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), body...)
	return fmt.Sprintf("memory://%s", key), nil
}

// GetPage returns the stored body for a URL.
func (s *Store) GetPage(_ context.Context, url string) ([]byte, error) {
	key := taxonomy.PageKey(url)
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("page not found for %q", url)
	}
	return append([]byte(nil), body...), nil
}

// Len reports how many pages are stored (for tests).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
