package reputation

import (
	"context"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store persists feedback entries. Append assigns the next sequential ID;
// IDs are never reused, and revoked entries stay in every index.
type Store interface {
	// Append stores a new feedback entry, assigning its ID and timestamp.
	// The entry's ID, Revoked, CreatedAt and RevokedAt fields are ignored.
	Append(ctx context.Context, fb *Feedback) (*Feedback, error)

	// Get returns a feedback entry by ID, revoked or not.
	Get(ctx context.Context, id uint64) (*Feedback, error)

	// Revoke tombstones an entry. Fails with ErrAlreadyRevoked on repeat.
	Revoke(ctx context.Context, id uint64) (*Feedback, error)

	// ListByServer returns all feedback about a server agent, oldest first,
	// including revoked entries.
	ListByServer(ctx context.Context, serverID uint64) ([]*Feedback, error)

	// Count returns the total number of feedback entries ever appended.
	Count(ctx context.Context) (uint64, error)
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint64
	byID     map[uint64]*Feedback
	byServer map[uint64][]uint64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[uint64]*Feedback),
		byServer: make(map[uint64][]uint64),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Append(ctx context.Context, fb *Feedback) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := &Feedback{
		ID:          m.nextID,
		ServerID:    fb.ServerID,
		ClientID:    fb.ClientID,
		DataHash:    fb.DataHash,
		FeedbackURI: fb.FeedbackURI,
		Signature:   fb.Signature,
		CreatedAt:   time.Now().UTC(),
	}
	m.nextID++

	m.byID[stored.ID] = stored
	m.byServer[stored.ServerID] = append(m.byServer[stored.ServerID], stored.ID)

	copy := *stored
	return &copy, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uint64) (*Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fb, exists := m.byID[id]
	if !exists {
		return nil, ErrFeedbackNotFound
	}

	copy := *fb
	return &copy, nil
}

func (m *MemoryStore) Revoke(ctx context.Context, id uint64) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fb, exists := m.byID[id]
	if !exists {
		return nil, ErrFeedbackNotFound
	}
	if fb.Revoked {
		return nil, ErrAlreadyRevoked
	}

	now := time.Now().UTC()
	fb.Revoked = true
	fb.RevokedAt = &now

	copy := *fb
	return &copy, nil
}

func (m *MemoryStore) ListByServer(ctx context.Context, serverID uint64) ([]*Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byServer[serverID]
	results := make([]*Feedback, 0, len(ids))
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
