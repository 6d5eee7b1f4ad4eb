package validation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store using PostgreSQL.
// Validation IDs come from the validation_ids sequence (MINVALUE 0), so the
// first entry is 0, matching the in-memory counter.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Append(ctx context.Context, v *Validation) (*Validation, error) {
	stored := &Validation{
		AgentID:       v.AgentID,
		ValidatorAddr: v.ValidatorAddr,
		RequestHash:   v.RequestHash,
		ResultCode:    v.ResultCode,
		EvidenceURI:   v.EvidenceURI,
		Tag:           v.Tag,
		CreatedAt:     time.Now().UTC(),
	}

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO validations (agent_id, validator_address, request_hash, result_code, evidence_uri, tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, stored.AgentID, stored.ValidatorAddr, stored.RequestHash, stored.ResultCode,
		stored.EvidenceURI, stored.Tag, stored.CreatedAt).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to append validation: %w", err)
	}

	return stored, nil
}

func (p *PostgresStore) Get(ctx context.Context, id uint64) (*Validation, error) {
	var v Validation
	err := p.db.QueryRowContext(ctx, `
		SELECT id, agent_id, validator_address, request_hash, result_code, evidence_uri, tag, created_at
		FROM validations WHERE id = $1
	`, id).Scan(&v.ID, &v.AgentID, &v.ValidatorAddr, &v.RequestHash,
		&v.ResultCode, &v.EvidenceURI, &v.Tag, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrValidationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation: %w", err)
	}
	return &v, nil
}

func (p *PostgresStore) ListByAgent(ctx context.Context, agentID uint64) ([]*Validation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_id, validator_address, request_hash, result_code, evidence_uri, tag, created_at
		FROM validations WHERE agent_id = $1 ORDER BY id
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*Validation{}
	for rows.Next() {
		var v Validation
		if err := rows.Scan(&v.ID, &v.AgentID, &v.ValidatorAddr, &v.RequestHash,
			&v.ResultCode, &v.EvidenceURI, &v.Tag, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		results = append(results, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validations: %w", err)
	}

	return results, nil
}

func (p *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count validations: %w", err)
	}
	return count, nil
}
