package store

import (
	"context"
	"sync"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// MemoryStore is a hand-written, in-memory Store used in unit tests.
// It honors the same cursor semantics as the Redis implementation but
// ignores TTL.
type MemoryStore struct {
	mu     sync.RWMutex
	queues map[string]*domain.StoredQueue

	// Optional error overrides, set in tests to simulate an
	// unavailable backend.
	SaveErr    error
	LoadErr    error
	AdvanceErr error
	RemoveErr  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queues: make(map[string]*domain.StoredQueue)}
}

func (s *MemoryStore) Save(_ context.Context, q *domain.StoredQueue) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := cloneQueue(q)
	s.queues[q.CycleID] = clone
	return nil
}

func (s *MemoryStore) Load(_ context.Context, cycleID string) (*domain.StoredQueue, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[cycleID]
	if !ok {
		return nil, domain.ErrNoQueue
	}
	return cloneQueue(q), nil
}

func (s *MemoryStore) Advance(_ context.Context, cycleID string, processed int) error {
	if s.AdvanceErr != nil {
		return s.AdvanceErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[cycleID]
	if !ok {
		return domain.ErrNoQueue
	}
	return q.AdvanceTo(processed)
}

func (s *MemoryStore) Remove(_ context.Context, cycleID string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, cycleID)
	return nil
}

// Contains reports whether a queue exists for the cycle. Test helper.
func (s *MemoryStore) Contains(cycleID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.queues[cycleID]
	return ok
}

func cloneQueue(q *domain.StoredQueue) *domain.StoredQueue {
	clone := *q
	clone.Items = make([]domain.QueueItem, len(q.Items))
	copy(clone.Items, q.Items)
	return &clone
}

var _ Store = (*MemoryStore)(nil)
