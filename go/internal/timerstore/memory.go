package timerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcdev12/battletimer/go/internal/clock"
)

type memoryEntry struct {
	value    []byte
	revision uint64
}

// MemoryStore keeps encoded values in a map. It only serves single-instance
// deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	revision uint64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Get(ctx context.Context, token string) (clock.State, error) {
	m.mu.Lock()
	entry, ok := m.entries[StateKey(token)]
	m.mu.Unlock()
	if !ok {
		return clock.State{}, ErrNotFound
	}

	var state clock.State
	if err := json.Unmarshal(entry.value, &state); err != nil {
		return clock.State{}, fmt.Errorf("decode timer state: %w", err)
	}
	state.Revision = entry.revision
	return state, nil
}

func (m *MemoryStore) Put(ctx context.Context, token string, state clock.State) (uint64, error) {
	if !ValidToken(token) {
		return 0, ErrInvalidToken
	}
	expected := state.Revision
	state.Revision = 0
	value, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encode timer state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := StateKey(token)
	current, exists := m.entries[key]
	switch {
	case expected == 0 && exists:
		return 0, ErrConflict
	case expected != 0 && (!exists || current.revision != expected):
		return 0, ErrConflict
	}

	m.revision++
	m.entries[key] = memoryEntry{value: value, revision: m.revision}
	return m.revision, nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, StateKey(token))
	delete(m.entries, OwnerKey(token))
	return nil
}

func (m *MemoryStore) GetOwnership(ctx context.Context, token string) (Ownership, error) {
	m.mu.Lock()
	entry, ok := m.entries[OwnerKey(token)]
	m.mu.Unlock()
	if !ok {
		return Ownership{}, ErrNotFound
	}

	var owner Ownership
	if err := json.Unmarshal(entry.value, &owner); err != nil {
		return Ownership{}, fmt.Errorf("decode ownership: %w", err)
	}
	return owner, nil
}

func (m *MemoryStore) PutOwnership(ctx context.Context, token string, owner Ownership) error {
	if !ValidToken(token) {
		return ErrInvalidToken
	}
	value, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("encode ownership: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.revision++
	m.entries[OwnerKey(token)] = memoryEntry{value: value, revision: m.revision}
	return nil
}
