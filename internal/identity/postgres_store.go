package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
// Identity IDs come from the identity_ids sequence (MINVALUE 0), so the
// first issued ID is 0, matching the in-memory counter.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Register(ctx context.Context, owner, domain, cardURI string) (*Identity, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, ErrEmptyDomain
	}

	ident := &Identity{
		OwnerAddress: strings.ToLower(owner),
		Domain:       domain,
		CardURI:      cardURI,
		RegisteredAt: time.Now().UTC(),
		Active:       true,
	}

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO identities (owner_address, domain, card_uri, registered_at, active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id
	`, ident.OwnerAddress, ident.Domain, ident.CardURI, ident.RegisteredAt).Scan(&ident.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to register identity: %w", err)
	}

	return ident, nil
}

func (p *PostgresStore) UpdateCard(ctx context.Context, id uint64, caller, newCardURI string) (*Identity, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT owner_address, active FROM identities WHERE id = $1 FOR UPDATE
	`, id).Scan(&owner, &active)

	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if !strings.EqualFold(owner, caller) {
		return nil, ErrNotOwner
	}
	if !active {
		return nil, ErrIdentityInactive
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE identities SET card_uri = $1 WHERE id = $2
	`, newCardURI, id); err != nil {
		return nil, fmt.Errorf("failed to update card: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return p.Get(ctx, id)
}

func (p *PostgresStore) Get(ctx context.Context, id uint64) (*Identity, error) {
	ident, err := p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, owner_address, domain, card_uri, registered_at, active
		FROM identities WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	if !ident.Active {
		return nil, ErrIdentityNotFound
	}
	return ident, nil
}

func (p *PostgresStore) ByOwner(ctx context.Context, owner string) (*Identity, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, owner_address, domain, card_uri, registered_at, active
		FROM identities WHERE owner_address = $1
	`, strings.ToLower(owner)))
}

func (p *PostgresStore) IsRegistered(ctx context.Context, owner string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM identities WHERE owner_address = $1)
	`, strings.ToLower(owner)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return exists, nil
}

func (p *PostgresStore) Remove(ctx context.Context, id uint64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove identity: %w", err)
	}
	if n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Identity, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_address, domain, card_uri, registered_at, active
		FROM identities ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*Identity{}
	for rows.Next() {
		var ident Identity
		if err := rows.Scan(&ident.ID, &ident.OwnerAddress, &ident.Domain,
			&ident.CardURI, &ident.RegisteredAt, &ident.Active); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		results = append(results, &ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return results, nil
}

func (p *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) scanOne(row *sql.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(&ident.ID, &ident.OwnerAddress, &ident.Domain,
		&ident.CardURI, &ident.RegisteredAt, &ident.Active)
	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &ident, nil
}
