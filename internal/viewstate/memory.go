package viewstate

import (
	"context"
	"sync"
)

// MemoryStore keeps view states in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]ViewState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]ViewState)}
}

// Load returns the saved view state for key.
func (s *MemoryStore) Load(_ context.Context, key Key) (ViewState, bool, error) {
	if err := key.validate(); err != nil {
		return ViewState{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, ok := s.states[key]
	return vs, ok, nil
}

// Save stores vs under key.
func (s *MemoryStore) Save(_ context.Context, key Key, vs ViewState) error {
	if err := key.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = vs
	return nil
}
