package auth

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists capability tokens in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed auth store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Create stores a new capability token
func (p *PostgresStore) Create(ctx context.Context, cap *Capability) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO capability_tokens (hash, owner_address, identity_id, issued_at)
		VALUES ($1, $2, $3, $4)
	`, cap.Hash, cap.OwnerAddr, cap.IdentityID, cap.IssuedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrTokenExists
	}
	return err
}

// GetByHash retrieves a capability by its token hash
func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Capability, error) {
	cap := &Capability{}
	var lastUsed sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT hash, owner_address, identity_id, issued_at, last_used
		FROM capability_tokens WHERE hash = $1
	`, hash).Scan(&cap.Hash, &cap.OwnerAddr, &cap.IdentityID, &cap.IssuedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		cap.LastUsed = lastUsed.Time
	}
	return cap, nil
}

// Update refreshes mutable token metadata
func (p *PostgresStore) Update(ctx context.Context, cap *Capability) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE capability_tokens SET last_used = $1 WHERE hash = $2
	`, cap.LastUsed, cap.Hash)
	return err
}
