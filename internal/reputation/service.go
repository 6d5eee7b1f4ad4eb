package reputation

import (
	"context"
	"errors"
	"strings"

	"github.com/halcyonlabs/agenttrust/internal/ethsig"
	"github.com/halcyonlabs/agenttrust/internal/identity"
	"github.com/halcyonlabs/agenttrust/internal/traces"
)

// IdentityDirectory resolves agent IDs to identities. Satisfied by
// identity.Store.
type IdentityDirectory interface {
	Get(ctx context.Context, id uint64) (*identity.Identity, error)
}

// Service enforces the feedback authorization rules on top of a Store.
type Service struct {
	store      Store
	identities IdentityDirectory
}

// NewService creates a new reputation service.
func NewService(store Store, identities IdentityDirectory) *Service {
	return &Service{store: store, identities: identities}
}

// Submit verifies a server-signed feedback grant and appends the entry.
//
// clientID is the caller's resolved identity. The signature must be the
// server owner's signature over SigningMessage(serverID, clientID, dataHash):
// feedback about an agent is only recorded with that agent's consent, while
// the client stays the party that triggers the write.
func (s *Service) Submit(ctx context.Context, serverID, clientID uint64, dataHash, feedbackURI string, sig ethsig.Signature) (*Feedback, error) {
	ctx, span := traces.StartSpan(ctx, "reputation.Submit",
		traces.AgentID(serverID), traces.DataHash(dataHash))
	defer span.End()

	if strings.TrimSpace(dataHash) == "" {
		return nil, ErrEmptyDataHash
	}

	server, err := s.identities.Get(ctx, serverID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	if _, err := s.identities.Get(ctx, clientID); err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrClientNotRegistered
		}
		return nil, err
	}

	hash := ethsig.HashMessage(SigningMessage(serverID, clientID, dataHash))
	if err := ethsig.VerifySigner(hash, sig, server.OwnerAddress); err != nil {
		return nil, err
	}

	return s.store.Append(ctx, &Feedback{
		ServerID:    serverID,
		ClientID:    clientID,
		DataHash:    dataHash,
		FeedbackURI: feedbackURI,
		Signature:   sig.Hex(),
	})
}

// Revoke tombstones a feedback entry. Only the owner of the client identity
// that authored the entry may revoke it.
func (s *Service) Revoke(ctx context.Context, feedbackID uint64, caller string) (*Feedback, error) {
	ctx, span := traces.StartSpan(ctx, "reputation.Revoke", traces.FeedbackID(feedbackID))
	defer span.End()

	fb, err := s.store.Get(ctx, feedbackID)
	if err != nil {
		return nil, err
	}

	client, err := s.identities.Get(ctx, fb.ClientID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrNotFeedbackAuthor
		}
		return nil, err
	}
	if !strings.EqualFold(client.OwnerAddress, caller) {
		return nil, ErrNotFeedbackAuthor
	}

	return s.store.Revoke(ctx, feedbackID)
}

// Get returns one feedback entry, revoked or not.
func (s *Service) Get(ctx context.Context, id uint64) (*Feedback, error) {
	return s.store.Get(ctx, id)
}

// ListByServer returns all feedback about a server agent, including
// revoked entries.
func (s *Service) ListByServer(ctx context.Context, serverID uint64) ([]*Feedback, error) {
	if _, err := s.identities.Get(ctx, serverID); err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}
	return s.store.ListByServer(ctx, serverID)
}

// Count returns the total number of feedback entries.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}
