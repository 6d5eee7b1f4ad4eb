package reputation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store using PostgreSQL.
// Feedback IDs come from the feedback_ids sequence (MINVALUE 0), so the
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

func (p *PostgresStore) Append(ctx context.Context, fb *Feedback) (*Feedback, error) {
	stored := &Feedback{
		ServerID:    fb.ServerID,
		ClientID:    fb.ClientID,
		DataHash:    fb.DataHash,
		FeedbackURI: fb.FeedbackURI,
		Signature:   fb.Signature,
		CreatedAt:   time.Now().UTC(),
	}

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO feedbacks (server_id, client_id, data_hash, feedback_uri, signature, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
		RETURNING id
	`, stored.ServerID, stored.ClientID, stored.DataHash, stored.FeedbackURI,
		stored.Signature, stored.CreatedAt).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to append feedback: %w", err)
	}

	return stored, nil
}

func (p *PostgresStore) Get(ctx context.Context, id uint64) (*Feedback, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, server_id, client_id, data_hash, feedback_uri, signature, revoked, created_at, revoked_at
		FROM feedbacks WHERE id = $1
	`, id))
}

func (p *PostgresStore) Revoke(ctx context.Context, id uint64) (*Feedback, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin revoke: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var revoked bool
	err = tx.QueryRowContext(ctx, `
		SELECT revoked FROM feedbacks WHERE id = $1 FOR UPDATE
	`, id).Scan(&revoked)
	if err == sql.ErrNoRows {
		return nil, ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}
	if revoked {
		return nil, ErrAlreadyRevoked
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE feedbacks SET revoked = true, revoked_at = NOW() WHERE id = $1
	`, id); err != nil {
		return nil, fmt.Errorf("failed to revoke feedback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit revoke: %w", err)
	}

	return p.Get(ctx, id)
}

func (p *PostgresStore) ListByServer(ctx context.Context, serverID uint64) ([]*Feedback, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, server_id, client_id, data_hash, feedback_uri, signature, revoked, created_at, revoked_at
		FROM feedbacks WHERE server_id = $1 ORDER BY id
	`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*Feedback{}
	for rows.Next() {
		fb, err := scanFeedback(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		results = append(results, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}

	return results, nil
}

func (p *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedbacks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) scanOne(row *sql.Row) (*Feedback, error) {
	fb, err := scanFeedback(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

func scanFeedback(scan func(...any) error) (*Feedback, error) {
	var fb Feedback
	var revokedAt sql.NullTime
	if err := scan(&fb.ID, &fb.ServerID, &fb.ClientID, &fb.DataHash,
		&fb.FeedbackURI, &fb.Signature, &fb.Revoked, &fb.CreatedAt, &revokedAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		fb.RevokedAt = &revokedAt.Time
	}
	return &fb, nil
}
