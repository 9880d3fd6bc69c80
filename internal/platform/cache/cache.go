package cache

import (
	"context"
	"sync"
	"time"
)

// entry holds a cached value and its expiration time. A zero expiresAt
// means the entry never expires on its own.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Store is a thread-safe in-memory keyed cache with lazy expiration.
// It is constructed and injected explicitly so tests and independent
// subsystems can hold isolated instances. Writers that mutate the data
// a Store shadows are expected to call Clear.
type Store struct {
	entries map[string]*entry
	ttl     time.Duration
	mu      sync.RWMutex
}

// New creates a Store whose entries expire after ttl. A ttl of zero
// disables time-based expiry, leaving Clear as the only invalidation path.
func New(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// Get retrieves a value. Performs lazy expiration: deletes the entry and
// returns a miss if it has expired.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value under key with the store's TTL.
func (s *Store) Set(key string, value interface{}) {
	e := &entry{value: value}
	if s.ttl > 0 {
		e.expiresAt = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// Delete removes a single entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// Len returns the number of live entries, counting expired ones that have
// not yet been lazily collected.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartCleanup runs a background goroutine that periodically removes
// expired entries. It stops when the context is cancelled.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := time.Now()
				for k, e := range s.entries {
					if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}
