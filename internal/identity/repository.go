package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository records sign-in sessions for audit and scheduled purging. The
// authoritative copy lives in Redis; these rows only track who signed in
// from where and when the ticket lapses.
type Repository interface {
	CreateSession(ctx context.Context, id, profileID string, expiresAt time.Time, ip, userAgent string) error
	DeleteSession(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateSession inserts a session record, replacing any stale row that
// reused the same id.
func (r *PGRepository) CreateSession(ctx context.Context, id, profileID string, expiresAt time.Time, ip, userAgent string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, profile_id, created_at, expires_at, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET profile_id = EXCLUDED.profile_id,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at,
		     ip         = EXCLUDED.ip,
		     user_agent = EXCLUDED.user_agent`,
		id, profileID, time.Now().UTC(), expiresAt, ip, userAgent)
	if err != nil {
		return fmt.Errorf("identity: create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record on sign-out.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
		return fmt.Errorf("identity: delete session: %w", err)
	}
	return nil
}

// PurgeExpired drops session records whose expiry has passed.
func (r *PGRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("identity: purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
