// Package auth provides ownership capability tokens for Agenttrust.
//
// Authentication model:
// - Public endpoints (lookups, stats, validation submission): No auth required
// - Owner mutations (card updates) and client actions (feedback, revocation):
//   Require the capability token minted at registration
// - Exactly one token per identity, issued once; only its hash is stored
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/halcyonlabs/agenttrust/internal/idgen"
)

// Errors
var (
	ErrNoToken      = errors.New("capability token required")
	ErrInvalidToken = errors.New("invalid capability token")
	ErrTokenExists  = errors.New("token already issued for this identity")
)

// TokenPrefix marks raw capability tokens on the wire.
const TokenPrefix = "agt_"

// Capability is the stored record behind an ownership token.
// The raw token is returned once at issuance and never recoverable.
type Capability struct {
	Hash       string    `json:"-"`          // SHA256 hash of the token (stored)
	OwnerAddr  string    `json:"ownerAddr"`  // The address this token authenticates as
	IdentityID uint64    `json:"identityId"` // The identity it was minted for
	IssuedAt   time.Time `json:"issuedAt"`
	LastUsed   time.Time `json:"lastUsed,omitempty"`
}

// Store persists capability tokens
type Store interface {
	Create(ctx context.Context, cap *Capability) error
	GetByHash(ctx context.Context, hash string) (*Capability, error)
	Update(ctx context.Context, cap *Capability) error
}

// Manager issues and resolves capability tokens
type Manager struct {
	store Store
}

// NewManager creates a new auth manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Issue mints the ownership token for a freshly registered identity.
// Returns the raw token (shown once) and the stored metadata.
func (m *Manager) Issue(ctx context.Context, ownerAddr string, identityID uint64) (rawToken string, cap *Capability, err error) {
	rawToken = TokenPrefix + idgen.Hex(32)

	cap = &Capability{
		Hash:       hashToken(rawToken),
		OwnerAddr:  strings.ToLower(ownerAddr),
		IdentityID: identityID,
		IssuedAt:   time.Now().UTC(),
	}

	if err := m.store.Create(ctx, cap); err != nil {
		return "", nil, err
	}

	return rawToken, cap, nil
}

// Resolve validates a raw token and returns the capability it carries.
func (m *Manager) Resolve(ctx context.Context, rawToken string) (*Capability, error) {
	if rawToken == "" {
		return nil, ErrNoToken
	}

	rawToken = strings.TrimPrefix(rawToken, "Bearer ")
	rawToken = strings.TrimSpace(rawToken)

	if !strings.HasPrefix(rawToken, TokenPrefix) {
		return nil, ErrInvalidToken
	}

	cap, err := m.store.GetByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Update last used (fire and forget)
	go func() {
		cap.LastUsed = time.Now().UTC()
		m.store.Update(context.Background(), cap)
	}()

	return cap, nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]*Capability
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]*Capability),
	}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, cap *Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[cap.Hash]; exists {
		return ErrTokenExists
	}
	c := *cap
	s.byHash[cap.Hash] = &c
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cap, exists := s.byHash[hash]
	if !exists {
		return nil, ErrInvalidToken
	}
	c := *cap
	return &c, nil
}

func (s *MemoryStore) Update(ctx context.Context, cap *Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cap
	s.byHash[cap.Hash] = &c
	return nil
}
