package validation

import (
	"context"
	"errors"
	"strings"

	"github.com/halcyonlabs/agenttrust/internal/identity"
	"github.com/halcyonlabs/agenttrust/internal/traces"
)

// IdentityDirectory resolves agent IDs to identities. Satisfied by
// identity.Store.
type IdentityDirectory interface {
	Get(ctx context.Context, id uint64) (*identity.Identity, error)
}

// Service enforces the validation submission rules on top of a Store.
type Service struct {
	store      Store
	identities IdentityDirectory
}

// NewService creates a new validation service.
func NewService(store Store, identities IdentityDirectory) *Service {
	return &Service{store: store, identities: identities}
}

// Submit records a third-party validation of an agent. The validator needs
// no identity of its own; the only preconditions are that the agent is
// active and the result code is within the known set.
func (s *Service) Submit(ctx context.Context, agentID uint64, validatorAddr, requestHash string, code ResultCode, evidenceURI, tag string) (*Validation, error) {
	ctx, span := traces.StartSpan(ctx, "validation.Submit",
		traces.AgentID(agentID), traces.ValidatorAddr(validatorAddr))
	defer span.End()

	if !code.Valid() {
		return nil, ErrInvalidResultCode
	}
	if strings.TrimSpace(requestHash) == "" {
		return nil, ErrEmptyRequestHash
	}

	if _, err := s.identities.Get(ctx, agentID); err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	return s.store.Append(ctx, &Validation{
		AgentID:       agentID,
		ValidatorAddr: strings.ToLower(validatorAddr),
		RequestHash:   requestHash,
		ResultCode:    code,
		EvidenceURI:   evidenceURI,
		Tag:           tag,
	})
}

// Get returns one validation entry.
func (s *Service) Get(ctx context.Context, id uint64) (*Validation, error) {
	return s.store.Get(ctx, id)
}

// ListByAgent returns all validations of an agent.
func (s *Service) ListByAgent(ctx context.Context, agentID uint64) ([]*Validation, error) {
	if _, err := s.identities.Get(ctx, agentID); err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return s.store.ListByAgent(ctx, agentID)
}

// Count returns the total number of validation entries.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}
