package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage/memory"
	"github.com/filmgrid/auth-service/internal/util"
)

func newTestTokenConfig() *util.TokenConfig {
	return &util.TokenConfig{
		JwtSecretKey:      []byte("test-signing-key"),
		Issuer:            "filmgrid-auth",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        time.Hour,
		MfaTicketTTL:      5 * time.Minute,
		PasswordTicketTTL: 10 * time.Minute,
	}
}

func seedViewer(store *memory.Storage) *models.User {
	return store.SeedUser(&models.User{
		Username:        "alice",
		Email:           "alice@example.com",
		Status:          models.UserStatusActive,
		IsEmailVerified: true,
	}, []string{"viewer"}, []string{"Movie.Read.Any", "Billing.Read.Own"})
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	user := seedViewer(store)
	svc := NewTokenService(newTestTokenConfig(), store, nil, zap.NewNop().Sugar())

	signed, err := svc.IssueFromUser(ctx, user, "session-1", nil, nil)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(signed)
	require.NoError(t, err)

	userID, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "filmgrid-auth", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
	assert.Equal(t, []string{"Billing.Read.Own", "Movie.Read.Any"}, claims.Permissions)
}

func TestIssueFromUserForwardsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	user := seedViewer(store)
	svc := NewTokenService(newTestTokenConfig(), store, nil, zap.NewNop().Sugar())

	perms := models.ParsePermissions([]string{"Movie.Write.Any"})
	signed, err := svc.IssueFromUser(ctx, user, "session-1", []string{"editor"}, perms)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, claims.Roles)
	assert.Equal(t, []string{"Movie.Write.Any"}, claims.Permissions)
}

func TestValidateAccessTokenRejectsWrongKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	user := seedViewer(store)

	issuer := NewTokenService(newTestTokenConfig(), store, nil, zap.NewNop().Sugar())
	signed, err := issuer.IssueFromUser(ctx, user, "session-1", nil, nil)
	require.NoError(t, err)

	otherCfg := newTestTokenConfig()
	otherCfg.JwtSecretKey = []byte("a-different-key")
	verifier := NewTokenService(otherCfg, store, nil, zap.NewNop().Sugar())

	_, err = verifier.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	user := seedViewer(store)

	cfg := newTestTokenConfig()
	cfg.AccessTTL = -time.Minute
	svc := NewTokenService(cfg, store, nil, zap.NewNop().Sugar())

	signed, err := svc.IssueFromUser(ctx, user, "session-1", nil, nil)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	store := memory.NewStorage()
	svc := NewTokenService(newTestTokenConfig(), store, nil, zap.NewNop().Sugar())

	for _, token := range []string{"", "not.a.jwt", "eyJhbGciOiJub25lIn0.e30."} {
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", token)
	}
}
