// Package identity implements the agent identity registry.
// Every other registry resolves caller addresses through this one, so its
// invariants (one identity per address, immutable ownership) underwrite the
// authorization checks everywhere else.
package identity

import (
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrAlreadyRegistered = errors.New("identity: address already registered")
	ErrEmptyDomain       = errors.New("identity: domain must be non-empty")
	ErrIdentityNotFound  = errors.New("identity: identity not found")
	ErrIdentityInactive  = errors.New("identity: identity is not active")
	ErrNotOwner          = errors.New("identity: caller is not the identity owner")
	ErrInvalidAddress    = errors.New("identity: invalid owner address")
)

// -----------------------------------------------------------------------------
// Core Types
// -----------------------------------------------------------------------------

// Identity represents one registered agent.
// IDs are assigned sequentially from 0 and never reused.
type Identity struct {
	ID           uint64    `json:"id"`
	OwnerAddress string    `json:"ownerAddress"` // Registering address, exactly one identity each
	Domain       string    `json:"domain"`       // Agent's claimed network domain
	CardURI      string    `json:"cardURI,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	Active       bool      `json:"active"`
}

// RegisterRequest is the payload for agent registration.
type RegisterRequest struct {
	Address string `json:"address" binding:"required"`
	Domain  string `json:"domain" binding:"required"`
	CardURI string `json:"cardURI"`
}

// UpdateCardRequest is the payload for replacing an agent's card pointer.
type UpdateCardRequest struct {
	CardURI string `json:"cardURI" binding:"required"`
}

// RegistrationStatus reports whether an address holds an identity.
// IdentityID is a pointer so "unregistered" is distinguishable from
// "registered as agent 0".
type RegistrationStatus struct {
	Address    string  `json:"address"`
	Registered bool    `json:"registered"`
	IdentityID *uint64 `json:"identityId,omitempty"`
}
