package record

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a Store held entirely in process memory. Records are
// copied on the way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("migration %s: %w", name, ErrRecordNotFound)
	}

	return r.Clone(), nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.Name]; ok {
		return fmt.Errorf("migration %s: %w", r.Name, ErrRecordExists)
	}

	s.records[r.Name] = r.Clone()

	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.Name]; !ok {
		return fmt.Errorf("migration %s: %w", r.Name, ErrRecordNotFound)
	}

	s.records[r.Name] = r.Clone()

	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}
