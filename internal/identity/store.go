package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store defines the persistence interface for the identity registry.
// All writes are atomic: they fully commit or leave no trace.
type Store interface {
	// Register issues the next sequential identity ID to owner.
	Register(ctx context.Context, owner, domain, cardURI string) (*Identity, error)

	// UpdateCard overwrites the card URI. Only the owning address may call it.
	UpdateCard(ctx context.Context, id uint64, caller, newCardURI string) (*Identity, error)

	// Get returns an active identity, or ErrIdentityNotFound.
	Get(ctx context.Context, id uint64) (*Identity, error)

	// ByOwner resolves an address to its identity, or ErrIdentityNotFound.
	ByOwner(ctx context.Context, owner string) (*Identity, error)

	// IsRegistered reports whether owner holds an identity.
	IsRegistered(ctx context.Context, owner string) (bool, error)

	// Remove deletes an identity. It exists to unwind a registration whose
	// follow-up writes failed; removed IDs are never reissued.
	Remove(ctx context.Context, id uint64) error

	// List returns identities ordered by ID.
	List(ctx context.Context, limit, offset int) ([]*Identity, error)

	// Count returns the total number of issued identities.
	Count(ctx context.Context) (uint64, error)
}

// -----------------------------------------------------------------------------
// In-Memory Store
// -----------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory implementation.
// The ID counter is owned by the store, starts at 0, and is monotonic for
// the store's lifetime; registration presence is tracked by map membership,
// never by comparing IDs against 0.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint64
	byID    map[uint64]*Identity
	byOwner map[string]*Identity
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uint64]*Identity),
		byOwner: make(map[string]*Identity),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Register(ctx context.Context, owner, domain, cardURI string) (*Identity, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, ErrEmptyDomain
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr := strings.ToLower(owner)
	if _, exists := m.byOwner[addr]; exists {
		return nil, ErrAlreadyRegistered
	}

	ident := &Identity{
		ID:           m.nextID,
		OwnerAddress: addr,
		Domain:       domain,
		CardURI:      cardURI,
		RegisteredAt: time.Now().UTC(),
		Active:       true,
	}
	m.nextID++

	m.byID[ident.ID] = ident
	m.byOwner[addr] = ident

	copy := *ident
	return &copy, nil
}

func (m *MemoryStore) UpdateCard(ctx context.Context, id uint64, caller, newCardURI string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, exists := m.byID[id]
	if !exists {
		return nil, ErrIdentityNotFound
	}
	if !strings.EqualFold(ident.OwnerAddress, caller) {
		return nil, ErrNotOwner
	}
	if !ident.Active {
		return nil, ErrIdentityInactive
	}

	ident.CardURI = newCardURI

	copy := *ident
	return &copy, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uint64) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, exists := m.byID[id]
	if !exists || !ident.Active {
		return nil, ErrIdentityNotFound
	}

	copy := *ident
	return &copy, nil
}

func (m *MemoryStore) ByOwner(ctx context.Context, owner string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, exists := m.byOwner[strings.ToLower(owner)]
	if !exists {
		return nil, ErrIdentityNotFound
	}

	copy := *ident
	return &copy, nil
}

func (m *MemoryStore) IsRegistered(ctx context.Context, owner string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.byOwner[strings.ToLower(owner)]
	return exists, nil
}

func (m *MemoryStore) Remove(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ident, exists := m.byID[id]
	if !exists {
		return ErrIdentityNotFound
	}

	// nextID is not rewound: the counter stays monotonic
	delete(m.byID, id)
	delete(m.byOwner, ident.OwnerAddress)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	results := []*Identity{}
	for id := uint64(offset); id < m.nextID && len(results) < limit; id++ {
		if ident, exists := m.byID[id]; exists {
			copy := *ident
			results = append(results, &copy)
		}
	}

	return results, nil
}

func (m *MemoryStore) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.byID)), nil
}
