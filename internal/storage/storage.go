package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/filmgrid/auth-service/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenNotFound   = errors.New("refresh token not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrDuplicateToken  = errors.New("refresh token hash already exists")
)

// DBTX is the common surface of *sql.DB and *sql.Tx, so repositories can run
// either standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Storage aggregates every relational repository plus transactional scoping.
// WithinTx runs fn against a Storage whose repositories share one ReadCommitted
// transaction; fn returning an error rolls the whole transaction back.
type Storage interface {
	UserRepository
	SessionRepository
	RefreshTokenRepository
	PermissionRepository
	AuditRepository

	WithinTx(ctx context.Context, fn func(Storage) error) error
}

// UserRepository is the user directory consumed by the login core.
type UserRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByProviderSub(ctx context.Context, providerSub string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
	LinkProviderSub(ctx context.Context, userID int64, providerSub string) error
	AssignRole(ctx context.Context, userID int64, roleName string) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error
	MarkSessionRevoked(ctx context.Context, sessionID string) error
	MarkAllSessionsRevokedForUser(ctx context.Context, userID int64) (int64, error)
}

type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// RevokeRefreshToken flips revoked_at only when the token is still active
	// and reports whether this call won the flip. This is the rotation guard.
	RevokeRefreshToken(ctx context.Context, tokenHash, byIP, replacedByHash string, at time.Time) (bool, error)
	RevokeTokensBySession(ctx context.Context, userID int64, sessionID, byIP string, at time.Time) (int64, error)
	RevokeAllTokensForUser(ctx context.Context, userID int64, byIP string, at time.Time) (int64, error)
	RefreshTokenHashExists(ctx context.Context, tokenHash string) (bool, error)
}

// PermissionRepository resolves the flat user -> roles -> permissions walk.
type PermissionRepository interface {
	GetRoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	GetPermissionCodesForUser(ctx context.Context, userID int64) ([]string, error)
}

// AuditRepository is the audit sink; callers treat writes as best-effort.
type AuditRepository interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// TicketStore is the shared key-value store for short-lived single-use proof
// tokens. Take is the atomic get-and-delete used to consume a ticket.
type TicketStore interface {
	IssueTicket(ctx context.Context, key, value string, ttl time.Duration) error
	RedeemTicket(ctx context.Context, key string) (string, error)
	TakeTicket(ctx context.Context, key string) (string, error)
	DeleteTicket(ctx context.Context, key string) error
}

// AccessTokenCache holds freshly minted access tokens with TTL equal to the
// token lifetime. Purely a read-through optimization, never a source of truth.
type AccessTokenCache interface {
	CacheAccessToken(ctx context.Context, jti, token string, ttl time.Duration) error
	GetCachedAccessToken(ctx context.Context, jti string) (string, error)
}
