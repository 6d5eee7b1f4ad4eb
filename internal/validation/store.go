package validation

import (
	"context"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store persists validation entries. Append assigns the next sequential ID;
// entries are never mutated or deleted afterwards.
type Store interface {
	// Append stores a new validation entry, assigning its ID and timestamp.
	Append(ctx context.Context, v *Validation) (*Validation, error)

	// Get returns a validation entry by ID, or ErrValidationNotFound.
	Get(ctx context.Context, id uint64) (*Validation, error)

	// ListByAgent returns all validations of an agent, oldest first.
	ListByAgent(ctx context.Context, agentID uint64) ([]*Validation, error)

	// Count returns the total number of validation entries.
	Count(ctx context.Context) (uint64, error)
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint64
	byID    map[uint64]*Validation
	byAgent map[uint64][]uint64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uint64]*Validation),
		byAgent: make(map[uint64][]uint64),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Append(ctx context.Context, v *Validation) (*Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := &Validation{
		ID:            m.nextID,
		AgentID:       v.AgentID,
		ValidatorAddr: v.ValidatorAddr,
		RequestHash:   v.RequestHash,
		ResultCode:    v.ResultCode,
		EvidenceURI:   v.EvidenceURI,
		Tag:           v.Tag,
		CreatedAt:     time.Now().UTC(),
	}
	m.nextID++

	m.byID[stored.ID] = stored
	m.byAgent[stored.AgentID] = append(m.byAgent[stored.AgentID], stored.ID)

	copy := *stored
	return &copy, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uint64) (*Validation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, exists := m.byID[id]
	if !exists {
		return nil, ErrValidationNotFound
	}

	copy := *v
	return &copy, nil
}

func (m *MemoryStore) ListByAgent(ctx context.Context, agentID uint64) ([]*Validation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byAgent[agentID]
	results := make([]*Validation, 0, len(ids))
	for _, id := range ids {
		copy := *m.byID[id]
		results = append(results, &copy)
	}

	return results, nil
}

func (m *MemoryStore) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nextID, nil
}
