package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
	"github.com/filmgrid/auth-service/internal/util"
)

// With 256 bits of CSPRNG entropy a collision is astronomically unlikely, but
// the retry loop must exist.
const maxTokenGenerateAttempts = 5

// HashRefreshToken derives the storage key from the opaque value. Only the
// hash is ever persisted.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenService owns the refresh-token rotation chain: generation,
// rotation, and revocation at token, session, and user granularity.
type RefreshTokenService struct {
	storage    storage.Storage
	tokens     *TokenService
	refreshTTL time.Duration
	now        func() time.Time
}

func NewRefreshTokenService(storage storage.Storage, tokens *TokenService, cfg *util.TokenConfig) *RefreshTokenService {
	return &RefreshTokenService{
		storage:    storage,
		tokens:     tokens,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// Generate mints a fresh opaque token for the session and persists its record
// through st (which may be transaction-scoped). Returns the plaintext value;
// it is never stored.
func (s *RefreshTokenService) Generate(ctx context.Context, st storage.Storage, userID int64, sessionID string) (string, *models.RefreshToken, error) {
	now := s.now().UTC()

	for attempt := 0; attempt < maxTokenGenerateAttempts; attempt++ {
		raw := make([]byte, util.RefreshTokenBytes)
		if _, err := rand.Read(raw); err != nil {
			return "", nil, fmt.Errorf("failed to read random bytes: %w", err)
		}
		value := base64.RawURLEncoding.EncodeToString(raw)

		record := &models.RefreshToken{
			TokenHash: HashRefreshToken(value),
			UserID:    userID,
			SessionID: sessionID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.refreshTTL),
		}
		err := st.CreateRefreshToken(ctx, record)
		if errors.Is(err, storage.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("persist refresh token: %w", err)
		}
		return value, record, nil
	}
	return "", nil, fmt.Errorf("could not generate a unique refresh token after %d attempts", maxTokenGenerateAttempts)
}

// RotationResult carries what the orchestrator needs after a rotation: the
// new pair plus the identities involved and the IP the session last saw.
type RotationResult struct {
	Pair      models.TokenPair
	UserID    int64
	SessionID string
	PrevIP    string
}

// Rotate exchanges a still-active refresh token for a new pair under the same
// session. The old token is revoked with an atomic conditional update; if a
// concurrent rotation got there first this call fails with ErrTokenInvalid
// and creates nothing. The access token is minted from a freshly recomputed
// permission snapshot — claims are never trusted across a rotation.
func (s *RefreshTokenService) Rotate(ctx context.Context, oldValue, ip string) (*RotationResult, error) {
	now := s.now().UTC()
	oldHash := HashRefreshToken(oldValue)

	var (
		user     *models.User
		newValue string
		result   RotationResult
	)
	err := s.storage.WithinTx(ctx, func(st storage.Storage) error {
		old, err := st.GetRefreshToken(ctx, oldHash)
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrTokenInvalid
		}
		if err != nil {
			return fmt.Errorf("load refresh token: %w", err)
		}
		if !old.IsActive(now) {
			return ErrTokenInvalid
		}

		session, err := st.GetSession(ctx, old.SessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if session.IsRevoked {
			return ErrTokenInvalid
		}

		value, record, err := s.Generate(ctx, st, old.UserID, old.SessionID)
		if err != nil {
			return err
		}

		// The conditional revoke is the race guard: of two concurrent
		// rotations of the same token, exactly one wins this update.
		won, err := st.RevokeRefreshToken(ctx, oldHash, ip, record.TokenHash, now)
		if err != nil {
			return fmt.Errorf("revoke old token: %w", err)
		}
		if !won {
			return ErrTokenInvalid
		}

		if err := st.TouchSession(ctx, old.SessionID, now); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}

		user, err = st.FindUserByID(ctx, old.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		newValue = value
		result = RotationResult{
			UserID:    old.UserID,
			SessionID: old.SessionID,
			PrevIP:    session.IPAddress,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.IssueFromUser(ctx, user, result.SessionID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	result.Pair = models.TokenPair{AccessToken: accessToken, RefreshToken: newValue}
	return &result, nil
}

// GetActive resolves a presented token value to its record and owning user.
// Used by logout-by-token so revocation needs no second lookup.
func (s *RefreshTokenService) GetActive(ctx context.Context, value string) (*models.RefreshToken, *models.User, error) {
	token, err := s.storage.GetRefreshToken(ctx, HashRefreshToken(value))
	if errors.Is(err, storage.ErrTokenNotFound) {
		return nil, nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load refresh token: %w", err)
	}
	if !token.IsActive(s.now().UTC()) {
		return nil, nil, ErrTokenInvalid
	}
	user, err := s.storage.FindUserByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	return token, user, nil
}

// RevokeBySession revokes every active token scoped to one session
// (single-device logout).
func (s *RefreshTokenService) RevokeBySession(ctx context.Context, userID int64, sessionID, ip string) (int64, error) {
	count, err := s.storage.RevokeTokensBySession(ctx, userID, sessionID, ip, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke session tokens: %w", err)
	}
	return count, nil
}

// RevokeAllForUser revokes every active token across all of the user's
// sessions ("log out everywhere", forced password reset).
func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID int64, ip string) (int64, error) {
	count, err := s.storage.RevokeAllTokensForUser(ctx, userID, ip, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return count, nil
}
