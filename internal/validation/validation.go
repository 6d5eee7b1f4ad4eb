// Package validation implements the validation registry.
//
// Validations are third-party assessments of an agent's off-chain task
// execution. Anyone may act as validator, registered or not; the only gates
// are that the validated agent exists and that the result code is within
// the known set. Entries are written once and never mutated.
package validation

import (
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	ErrValidationNotFound = errors.New("validation: validation not found")
	ErrAgentNotFound      = errors.New("validation: agent identity not found")
	ErrInvalidResultCode  = errors.New("validation: result code must be 0, 1 or 2")
	ErrEmptyRequestHash   = errors.New("validation: request hash must be non-empty")
)

// -----------------------------------------------------------------------------
// Core Types
// -----------------------------------------------------------------------------

// ResultCode classifies a validation outcome.
type ResultCode uint8

const (
	ResultPass     ResultCode = 0
	ResultFail     ResultCode = 1
	ResultDisputed ResultCode = 2
)

// Valid reports whether the code is within the known set. Every other
// value, up to 255, is rejected at submission.
func (r ResultCode) Valid() bool {
	return r <= ResultDisputed
}

// String returns the human-readable name of the code.
func (r ResultCode) String() string {
	switch r {
	case ResultPass:
		return "pass"
	case ResultFail:
		return "fail"
	case ResultDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// Validation is one immutable validation entry.
type Validation struct {
	ID            uint64     `json:"id"`
	AgentID       uint64     `json:"agentId"`          // Identity being validated
	ValidatorAddr string     `json:"validatorAddress"` // Unconstrained, any address
	RequestHash   string     `json:"requestHash"`      // Reference to the off-chain task
	ResultCode    ResultCode `json:"resultCode"`
	EvidenceURI   string     `json:"evidenceURI,omitempty"`
	Tag           string     `json:"tag,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// SubmitRequest is the payload for submitting a validation.
// ResultCode is a pointer so 0 (pass) survives required-field binding.
type SubmitRequest struct {
	AgentID          *uint64 `json:"agentId" binding:"required"`
	ValidatorAddress string  `json:"validatorAddress" binding:"required"`
	RequestHash      string  `json:"requestHash" binding:"required"`
	ResultCode       *uint8  `json:"resultCode" binding:"required"`
	EvidenceURI      string  `json:"evidenceURI"`
	Tag              string  `json:"tag"`
}
