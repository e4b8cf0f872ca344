package keystore

import (
	"strings"
	"sync"
)

// KeyStore holds the API keys allowed to call the lookup endpoint.
// Membership is exact-match and case-sensitive. Keys are never removed.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// New creates a store seeded with keys. Blank entries are skipped.
func New(keys ...string) *KeyStore {
	s := &KeyStore{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		s.keys[k] = struct{}{}
	}
	return s
}

// Valid reports whether key is non-empty and known.
func (s *KeyStore) Valid(key string) bool {
	if key == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Add inserts key and reports whether the set changed.
func (s *KeyStore) Add(key string) bool {
	if strings.TrimSpace(key) == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
