package audit

import (
	"context"
	"sync"

	id "filegate/pkg/domain"
)

// InMemoryStore keeps events per tenant. Used in tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.TenantID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.TenantID][]Event)}
}

func (s *InMemoryStore) InsertBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		s.events[event.TenantID] = append(s.events[event.TenantID], event)
	}
	return nil
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenant id.TenantID, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.events[tenant]
	if limit > 0 && limit < len(stored) {
		stored = stored[len(stored)-limit:]
	}
	return append([]Event{}, stored...), nil
}

// Len reports the total number of stored events across tenants.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, stored := range s.events {
		n += len(stored)
	}
	return n
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.TenantID][]Event)
}
