// File: internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// MemoryStore keeps snapshots in process memory. It is the default backend
// for one-shot CLI runs where persistence across processes is not needed.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*schemas.ApplicationStateSnapshot
}

var _ schemas.StateStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*schemas.ApplicationStateSnapshot)}
}

// Save stores a copy of the snapshot.
func (s *MemoryStore) Save(_ context.Context, state *schemas.ApplicationStateSnapshot) error {
	if state == nil || state.ApplicationID == "" {
		return fmt.Errorf("snapshot with application_id is required")
	}
	clone := *state
	s.mu.Lock()
	s.states[state.ApplicationID] = &clone
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the stored snapshot.
func (s *MemoryStore) Load(_ context.Context, applicationID string) (*schemas.ApplicationStateSnapshot, error) {
	s.mu.RLock()
	state, ok := s.states[applicationID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, applicationID)
	}
	clone := *state
	return &clone, nil
}
