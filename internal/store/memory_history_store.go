package store

import (
	"context"
	"sync"

	"github.com/dunamismax/pixelshrink/internal/domain"
)

const DefaultMemoryCapacity = 200

// MemoryHistoryStore keeps the most recent conversions in a fixed-size ring.
type MemoryHistoryStore struct {
	mu      sync.RWMutex
	entries []domain.Conversion
	next    int
	full    bool
}

func NewMemoryHistoryStore(capacity int) *MemoryHistoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryHistoryStore{
		entries: make([]domain.Conversion, capacity),
	}
}

func (s *MemoryHistoryStore) Record(_ context.Context, conversion domain.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.next] = conversion
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *MemoryHistoryStore) Recent(_ context.Context, limit int) ([]domain.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.entries)
	}
	limit = min(normalizeLimit(limit), size)

	out := make([]domain.Conversion, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out, nil
}
