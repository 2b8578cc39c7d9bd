// Package locals holds the application-wide key/value settings shared by app
// modules and introspected by the settings endpoint.
package locals

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrEmptyKey indicates an attempt to store a value under a blank key.
	ErrEmptyKey = errors.New("locals key must not be empty")
)

// Store keeps locals in-memory and guards access with a RWMutex.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New initialises a store with a copy of initial.
func New(initial map[string]any) *Store {
	return &Store{
		values: cloneMap(initial),
	}
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()

	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of every stored value.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneMap(s.values)
}

// Without returns a copy of the store minus the excluded keys.
func (s *Store) Without(excluded ...string) map[string]any {
	out := s.Snapshot()
	for _, k := range excluded {
		delete(out, k)
	}
	return out
}

// Only returns a copy restricted to the given keys that are present.
func (s *Store) Only(keys []string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
