// Package memory holds the in-process admission tier: a map of counters the
// guard consults before spending a shared-cache round trip.
//
// The tier is advisory and conservative. It is refreshed from shared-tier
// responses, so it may lag behind other processes and reject a request the
// shared tier would still admit, but it never admits past a ceiling the
// shared tier has already reported reached. It is rebuilt empty on restart.
package memory

import (
	"sync"
	"time"
)

type entry struct {
	count     int64
	expiresAt time.Time
}

// Store is a concurrency-safe counter cache with per-key expiry.
type Store struct {
	mu       sync.RWMutex
	counters map[string]entry
	ops      int
}

// sweepEvery bounds how often the lazy expiry sweep runs, in write ops.
const sweepEvery = 4096

// New creates an empty in-process store.
func New() *Store {
	return &Store{counters: make(map[string]entry)}
}

// Get returns the cached counter for key, or ok=false when absent or expired.
func (s *Store) Get(key string, now time.Time) (int64, bool) {
	s.mu.RLock()
	e, ok := s.counters[key]
	s.mu.RUnlock()
	if !ok || now.After(e.expiresAt) {
		return 0, false
	}
	return e.count, true
}

// Set caches a counter observed from the shared tier. expiresAt should be the
// window (or period) boundary so stale entries vanish on their own.
func (s *Store) Set(key string, count int64, expiresAt time.Time) {
	s.mu.Lock()
	s.counters[key] = entry{count: count, expiresAt: expiresAt}
	s.ops++
	if s.ops >= sweepEvery {
		s.sweepLocked(time.Now())
		s.ops = 0
	}
	s.mu.Unlock()
}

// Delete removes a key, e.g. after an admin reset.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.counters, key)
	s.mu.Unlock()
}

// Len reports live entries; used by health introspection and tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}

func (s *Store) sweepLocked(now time.Time) {
	for k, e := range s.counters {
		if now.After(e.expiresAt) {
			delete(s.counters, k)
		}
	}
}
