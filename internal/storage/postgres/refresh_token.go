package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
)

type RefreshTokenRepository struct {
	db storage.DBTX
}

func NewRefreshTokenRepository(db storage.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (token_hash, user_id, session_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		token.TokenHash,
		token.UserID,
		token.SessionID,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return storage.ErrDuplicateToken
		}
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	var revokedByIP, replacedByHash sql.NullString
	query := `SELECT token_hash, user_id, session_id, created_at, expires_at, revoked_at, revoked_by_ip, replaced_by_hash
		FROM refresh_tokens WHERE token_hash = $1`
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.TokenHash,
		&token.UserID,
		&token.SessionID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
		&revokedByIP,
		&replacedByHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	token.RevokedByIP = revokedByIP.String
	token.ReplacedByHash = replacedByHash.String
	return &token, nil
}

// RevokeRefreshToken marks the token revoked only if it is still active.
// The WHERE clause is the atomic guard against two concurrent rotations of
// the same token: exactly one caller sees rows-affected == 1.
func (r *RefreshTokenRepository) RevokeRefreshToken(ctx context.Context, tokenHash, byIP, replacedByHash string, at time.Time) (bool, error) {
	query := `UPDATE refresh_tokens
		SET revoked_at = $2, revoked_by_ip = $3, replaced_by_hash = NULLIF($4, '')
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, tokenHash, at, byIP, replacedByHash)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return count == 1, nil
}

func (r *RefreshTokenRepository) RevokeTokensBySession(ctx context.Context, userID int64, sessionID, byIP string, at time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $3, revoked_by_ip = $4
		WHERE user_id = $1 AND session_id = $2 AND revoked_at IS NULL AND expires_at > $3`
	res, err := r.db.ExecContext(ctx, query, userID, sessionID, at, byIP)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke session tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func (r *RefreshTokenRepository) RevokeAllTokensForUser(ctx context.Context, userID int64, byIP string, at time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2, revoked_by_ip = $3
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, userID, at, byIP)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func (r *RefreshTokenRepository) RefreshTokenHashExists(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check token hash: %w", err)
	}
	return exists, nil
}
