package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
	"github.com/filmgrid/auth-service/internal/util"
)

// AccessClaims is the signed claim bundle of an access token. Permissions are
// carried in their dotted string form.
type AccessClaims struct {
	UserID      string   `json:"uid"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	SessionID   string   `json:"sid"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// TokenService mints and validates signed HS512 access tokens. The signing
// key arrives in the config constructed at startup and is immutable for the
// process lifetime.
type TokenService struct {
	jwtSecretKey []byte
	issuer       string
	accessTTL    time.Duration
	permissions  storage.PermissionRepository
	cache        storage.AccessTokenCache
	log          *zap.SugaredLogger
}

func NewTokenService(cfg *util.TokenConfig, permissions storage.PermissionRepository, cache storage.AccessTokenCache, log *zap.SugaredLogger) *TokenService {
	return &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		issuer:       cfg.Issuer,
		accessTTL:    cfg.AccessTTL,
		permissions:  permissions,
		cache:        cache,
		log:          log,
	}
}

func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// IssueFromUser builds and signs an access token for the user and session.
// roles and perms are the login fast path: a snapshot resolved moments ago is
// forwarded to avoid a second round trip. Pass nil for either to force a
// fresh lookup — rotation always does, stale claims are never trusted across
// a rotation.
func (ts *TokenService) IssueFromUser(ctx context.Context, user *models.User, sessionID string, roles []string, perms []models.Permission) (string, error) {
	if roles == nil {
		fresh, err := ts.permissions.GetRoleNamesForUser(ctx, user.ID)
		if err != nil {
			return "", fmt.Errorf("resolve roles: %w", err)
		}
		roles = fresh
	}
	if perms == nil {
		codes, err := ts.permissions.GetPermissionCodesForUser(ctx, user.ID)
		if err != nil {
			return "", fmt.Errorf("resolve permissions: %w", err)
		}
		perms = models.ParsePermissions(codes)
	}

	now := time.Now()
	jti := uuid.NewString()
	claims := &AccessClaims{
		UserID:      strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		Email:       user.Email,
		SessionID:   sessionID,
		Roles:       roles,
		Permissions: models.PermissionStrings(perms),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    ts.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return "", fmt.Errorf("signed string: %w", err)
	}

	// Read-through optimization only; a cache failure never fails the issue.
	if ts.cache != nil {
		if err := ts.cache.CacheAccessToken(ctx, jti, signedToken, ts.accessTTL); err != nil {
			ts.log.Warnw("failed to cache access token", "error", err)
		}
	}

	return signedToken, nil
}

// ValidateAccessToken checks signature and expiry and returns the claims.
func (ts *TokenService) ValidateAccessToken(token string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
				return nil, ErrInvalidSigningKey
			}
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if parsedToken == nil || !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// SubjectID extracts the numeric user id from validated claims.
func (c *AccessClaims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.UserID, 10, 64)
	if err != nil {
		return 0, errors.New("invalid subject claim")
	}
	return id, nil
}
