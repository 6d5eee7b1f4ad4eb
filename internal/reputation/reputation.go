// Package reputation implements the feedback registry.
//
// Feedback is append-only and consent-gated: the server agent being reviewed
// signs a grant over (server, client, dataHash), and the client identity
// submits the entry with that grant attached. Only the client may revoke its
// own feedback, and revocation is a tombstone, not a deletion.
package reputation

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrFeedbackNotFound    = errors.New("reputation: feedback not found")
	ErrAlreadyRevoked      = errors.New("reputation: feedback already revoked")
	ErrServerNotFound      = errors.New("reputation: server identity not found")
	ErrClientNotRegistered = errors.New("reputation: client identity not registered")
	ErrNotFeedbackAuthor   = errors.New("reputation: caller is not the feedback author")
	ErrEmptyDataHash       = errors.New("reputation: data hash must be non-empty")
)

// -----------------------------------------------------------------------------
// Core Types
// -----------------------------------------------------------------------------

// Feedback is one immutable feedback entry.
// Entries keep their ID and stay listed after revocation; Revoked is the
// only field that ever changes.
type Feedback struct {
	ID          uint64     `json:"id"`
	ServerID    uint64     `json:"serverId"` // Agent being reviewed
	ClientID    uint64     `json:"clientId"` // Agent authoring the review
	DataHash    string     `json:"dataHash"` // Commitment to the off-chain feedback payload
	FeedbackURI string     `json:"feedbackURI,omitempty"`
	Signature   string     `json:"signature"` // The server's grant, hex-encoded
	Revoked     bool       `json:"revoked"`
	CreatedAt   time.Time  `json:"createdAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
}

// SubmitRequest is the payload for submitting feedback. The client identity
// is resolved from the caller's ownership token, never from the body.
type SubmitRequest struct {
	ServerID    *uint64 `json:"serverId" binding:"required"`
	DataHash    string  `json:"dataHash" binding:"required"`
	FeedbackURI string  `json:"feedbackURI"`
	Signature   string  `json:"signature" binding:"required"`
}

// SigningMessage builds the canonical text a server signs to authorize one
// feedback entry. The format is part of the wire protocol; changing it
// invalidates every grant in the wild.
func SigningMessage(serverID, clientID uint64, dataHash string) string {
	return fmt.Sprintf("AgentTrust|feedback|%d|%d|%s", serverID, clientID, dataHash)
}
