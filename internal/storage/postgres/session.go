package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
)

type SessionRepository struct {
	db storage.DBTX
}

func NewSessionRepository(db storage.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (id, user_id, device_id, ip_address, user_agent, created_at, last_seen_at, is_revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.IPAddress,
		session.UserAgent,
		session.CreatedAt,
		session.LastSeenAt,
		session.IsRevoked,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	query := `SELECT id, user_id, device_id, ip_address, user_agent, created_at, last_seen_at, is_revoked
		FROM sessions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.IsRevoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error {
	query := `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID, seenAt); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// MarkSessionRevoked is idempotent: revoking a revoked or unknown session is
// a no-op success.
func (r *SessionRepository) MarkSessionRevoked(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET is_revoked = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// MarkAllSessionsRevokedForUser flips every live session in one statement;
// rows are never loaded into memory.
func (r *SessionRepository) MarkAllSessionsRevokedForUser(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE sessions SET is_revoked = TRUE WHERE user_id = $1 AND NOT is_revoked`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
