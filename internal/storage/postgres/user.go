package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db storage.DBTX
}

func NewUserRepository(db storage.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, display_name, password_hash, status, is_email_verified, mfa_enabled, mfa_secret, COALESCE(provider_sub, ''), created_at`

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Status,
		&user.IsEmailVerified,
		&user.MfaEnabled,
		&user.MfaSecret,
		&user.ProviderSub,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) FindUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindUserByProviderSub(ctx context.Context, providerSub string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE provider_sub = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, providerSub))
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	query := `INSERT INTO users (username, email, display_name, password_hash, status, is_email_verified, mfa_enabled, mfa_secret, provider_sub)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')) RETURNING id, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Status,
		user.IsEmailVerified,
		user.MfaEnabled,
		user.MfaSecret,
		user.ProviderSub,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// LinkProviderSub attaches an SSO subject to an existing account. The partial
// unique index on provider_sub rejects a subject already linked elsewhere.
func (r *UserRepository) LinkProviderSub(ctx context.Context, userID int64, providerSub string) error {
	query := `UPDATE users SET provider_sub = $2 WHERE id = $1 AND provider_sub IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, providerSub)
	if err != nil {
		return fmt.Errorf("failed to link provider sub: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// AssignRole grants a role by name. A concurrent duplicate grant is benign:
// the unique violation means another request already did it.
func (r *UserRepository) AssignRole(ctx context.Context, userID int64, roleName string) error {
	query := `INSERT INTO user_roles (user_id, role_id) SELECT $1, id FROM roles WHERE name = $2`
	_, err := r.db.ExecContext(ctx, query, userID, roleName)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil
		}
		return fmt.Errorf("failed to assign role %q: %w", roleName, err)
	}
	return nil
}
