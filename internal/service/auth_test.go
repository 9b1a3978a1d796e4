package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage/memory"
)

type authFixture struct {
	auth    *AuthService
	refresh *RefreshTokenService
	tokens  *TokenService
	secrets *PasswordService
	store   *memory.Storage
	tickets *memory.TicketStore
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	store := memory.NewStorage()
	tickets := memory.NewTicketStore()
	log := zap.NewNop().Sugar()
	cfg := newTestTokenConfig()

	tokens := NewTokenService(cfg, store, nil, log)
	refresh := NewRefreshTokenService(store, tokens, cfg)
	secrets := NewPasswordService()
	auth := NewAuthService(
		store,
		NewTicketService(tickets, cfg.MfaTicketTTL, cfg.PasswordTicketTTL),
		secrets,
		NewTOTPService("FilmGrid"),
		tokens,
		refresh,
		nil,
		log,
	)

	return &authFixture{
		auth:    auth,
		refresh: refresh,
		tokens:  tokens,
		secrets: secrets,
		store:   store,
		tickets: tickets,
	}
}

func (f *authFixture) seedUser(t *testing.T, user *models.User, password string, roles, perms []string) *models.User {
	t.Helper()
	hash, err := f.secrets.Hash(password)
	require.NoError(t, err)
	user.PasswordHash = hash
	return f.store.SeedUser(user, roles, perms)
}

func (f *authFixture) seedAlice(t *testing.T) *models.User {
	return f.seedUser(t, &models.User{
		Username:        "alice",
		Email:           "alice@example.com",
		Status:          models.UserStatusActive,
		IsEmailVerified: true,
	}, "alice-password", []string{"viewer"}, []string{"Movie.Read.Any", "Billing.Read.Own"})
}

func (f *authFixture) seedBobWithMfa(t *testing.T) (*models.User, string) {
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	user := f.seedUser(t, &models.User{
		Username:        "bob",
		Email:           "bob@example.com",
		Status:          models.UserStatusActive,
		IsEmailVerified: true,
		MfaEnabled:      true,
		MfaSecret:       secret,
	}, "bob-password", []string{"editor"}, []string{"Movie.Write.Any"})
	return user, secret
}

func (f *authFixture) auditActions() []string {
	entries := f.store.AuditEntries()
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

var testMeta = RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

func TestLoginWithoutMfa(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.seedAlice(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)
	require.NotNil(t, out.Bundle)
	assert.False(t, out.RequiresMfa)
	assert.Empty(t, out.Warnings)
	assert.NotEmpty(t, out.Bundle.DeviceID)

	session, err := f.store.GetSession(ctx, out.Bundle.SessionID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, testMeta.IPAddress, session.IPAddress)

	claims, err := f.tokens.ValidateAccessToken(out.Bundle.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, out.Bundle.SessionID, claims.SessionID)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
	assert.Equal(t, []string{"Billing.Read.Own", "Movie.Read.Any"}, claims.Permissions)

	assert.Contains(t, f.auditActions(), models.AuditActionLogin)
}

func TestLoginByUsername(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)
	assert.NotNil(t, out.Bundle)
}

func TestLoginUnknownIdentifier(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	_, err := f.auth.Login(ctx, LoginInput{Identifier: "nobody@example.com", Password: "whatever", Meta: testMeta})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditResultRejected, entries[0].Result)
	assert.Nil(t, entries[0].ActorID)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	_, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "wrong", Meta: testMeta})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginIneligibleAccountHidesPasswordCorrectness(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedUser(t, &models.User{
		Username:        "carol",
		Email:           "carol@example.com",
		Status:          models.UserStatusLocked,
		IsEmailVerified: true,
	}, "carol-password", nil, nil)

	// Locked wins over password correctness in both directions.
	_, err := f.auth.Login(ctx, LoginInput{Identifier: "carol@example.com", Password: "carol-password", Meta: testMeta})
	assert.ErrorIs(t, err, ErrAccountLocked)
	_, err = f.auth.Login(ctx, LoginInput{Identifier: "carol@example.com", Password: "wrong", Meta: testMeta})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestLoginUnverifiedEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedUser(t, &models.User{
		Username: "dave",
		Email:    "dave@example.com",
		Status:   models.UserStatusActive,
	}, "dave-password", nil, nil)

	_, err := f.auth.Login(ctx, LoginInput{Identifier: "dave@example.com", Password: "dave-password", Meta: testMeta})
	assert.ErrorIs(t, err, ErrAccountUnverified)
}

func TestMfaLoginEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, secret := f.seedBobWithMfa(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "bob@example.com", Password: "bob-password", Meta: testMeta})
	require.NoError(t, err)
	assert.True(t, out.RequiresMfa)
	assert.NotEmpty(t, out.MfaTicket)
	assert.Nil(t, out.Bundle)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	done, err := f.auth.VerifyMfaAndLogin(ctx, out.MfaTicket, code, "", testMeta)
	require.NoError(t, err)
	require.NotNil(t, done.Bundle)
	assert.NotEmpty(t, done.Bundle.RefreshToken)

	claims, err := f.tokens.ValidateAccessToken(done.Bundle.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, claims.Roles)

	// The ticket was consumed by the successful verification.
	_, err = f.auth.VerifyMfaAndLogin(ctx, out.MfaTicket, code, "", testMeta)
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestMfaWrongCodeKeepsTicket(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, secret := f.seedBobWithMfa(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "bob@example.com", Password: "bob-password", Meta: testMeta})
	require.NoError(t, err)

	_, err = f.auth.VerifyMfaAndLogin(ctx, out.MfaTicket, "000000", "", testMeta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// A retry with the right code still works on the same ticket.
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	done, err := f.auth.VerifyMfaAndLogin(ctx, out.MfaTicket, code, "", testMeta)
	require.NoError(t, err)
	assert.NotNil(t, done.Bundle)
}

func TestMfaTicketExpires(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, secret := f.seedBobWithMfa(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "bob@example.com", Password: "bob-password", Meta: testMeta})
	require.NoError(t, err)

	f.tickets.SetClock(func() time.Time { return time.Now().Add(6 * time.Minute) })

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, err = f.auth.VerifyMfaAndLogin(ctx, out.MfaTicket, code, "", testMeta)
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestRotateAfterLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)

	pair, err := f.auth.Rotate(ctx, out.Bundle.RefreshToken, testMeta)
	require.NoError(t, err)
	assert.NotEqual(t, out.Bundle.RefreshToken, pair.RefreshToken)

	// The spent token is dead, the replacement rotates on.
	_, err = f.auth.Rotate(ctx, out.Bundle.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = f.auth.Rotate(ctx, pair.RefreshToken, testMeta)
	assert.NoError(t, err)
}

func TestLogoutByTokenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)

	require.NoError(t, f.auth.LogoutByToken(ctx, out.Bundle.RefreshToken, testMeta))

	session, err := f.store.GetSession(ctx, out.Bundle.SessionID)
	require.NoError(t, err)
	assert.True(t, session.IsRevoked)

	// Replays and garbage both succeed silently.
	assert.NoError(t, f.auth.LogoutByToken(ctx, out.Bundle.RefreshToken, testMeta))
	assert.NoError(t, f.auth.LogoutByToken(ctx, "never-issued", testMeta))

	_, err = f.auth.Rotate(ctx, out.Bundle.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestLogoutEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.seedAlice(t)

	first, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)
	second, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)

	count, err := f.auth.LogoutEverywhere(ctx, user.ID, testMeta)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, bundle := range []*TokenBundle{first.Bundle, second.Bundle} {
		_, err = f.auth.Rotate(ctx, bundle.RefreshToken, testMeta)
		assert.ErrorIs(t, err, ErrTokenInvalid)

		session, err := f.store.GetSession(ctx, bundle.SessionID)
		require.NoError(t, err)
		assert.True(t, session.IsRevoked)
	}
}

func TestSSOLoginByExistingSubject(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedUser(t, &models.User{
		Username:        "eve",
		Email:           "eve@example.com",
		Status:          models.UserStatusActive,
		IsEmailVerified: true,
		ProviderSub:     "idp|eve",
	}, "unused", []string{"viewer"}, nil)

	out, err := f.auth.LoginWithProvider(ctx, SSOInput{ProviderSub: "idp|eve", Email: "eve@example.com", Meta: testMeta})
	require.NoError(t, err)
	assert.NotNil(t, out.Bundle)
	assert.Contains(t, f.auditActions(), models.AuditActionSSOLogin)
}

func TestSSOLoginLinksByEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.seedAlice(t)

	out, err := f.auth.LoginWithProvider(ctx, SSOInput{ProviderSub: "idp|alice", Email: "alice@example.com", Meta: testMeta})
	require.NoError(t, err)
	assert.NotNil(t, out.Bundle)

	linked, err := f.store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "idp|alice", linked.ProviderSub)
}

func TestSSOLoginConflictingSubject(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedUser(t, &models.User{
		Username:        "eve",
		Email:           "eve@example.com",
		Status:          models.UserStatusActive,
		IsEmailVerified: true,
		ProviderSub:     "idp|eve",
	}, "unused", nil, nil)

	_, err := f.auth.LoginWithProvider(ctx, SSOInput{ProviderSub: "idp|someone-else", Email: "eve@example.com", Meta: testMeta})
	assert.ErrorIs(t, err, ErrProviderConflict)
}

func TestSSOLoginProvisionsNewUser(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	out, err := f.auth.LoginWithProvider(ctx, SSOInput{
		ProviderSub: "idp|newcomer",
		Email:       "newcomer@example.com",
		DisplayName: "New Comer",
		Meta:        testMeta,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Bundle)

	user, err := f.store.FindUserByProviderSub(ctx, "idp|newcomer")
	require.NoError(t, err)
	assert.True(t, user.IsEmailVerified)

	roles, err := f.store.GetRoleNamesForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.DefaultRoleName}, roles)

	assert.Contains(t, f.auditActions(), models.AuditActionSSOProvision)
}

func TestPasswordChangeRevokesEverything(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.seedAlice(t)

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)

	_, err = f.auth.InitPasswordChange(ctx, user.ID, "wrong-current", testMeta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	ticket, err := f.auth.InitPasswordChange(ctx, user.ID, "alice-password", testMeta)
	require.NoError(t, err)

	require.NoError(t, f.auth.CompletePasswordChange(ctx, ticket, "brand-new-password", testMeta))

	// The ticket is single use.
	assert.ErrorIs(t, f.auth.CompletePasswordChange(ctx, ticket, "again", testMeta), ErrTicketInvalid)

	// Every pre-change credential is dead.
	_, err = f.auth.Rotate(ctx, out.Bundle.RefreshToken, testMeta)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	relogin, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "brand-new-password", Meta: testMeta})
	require.NoError(t, err)
	assert.NotNil(t, relogin.Bundle)
}

func TestPasswordResetUnknownEmailRevealsNothing(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	ticket, err := f.auth.InitPasswordReset(ctx, "nobody@example.com", testMeta)
	assert.NoError(t, err)
	assert.Empty(t, ticket)
}

func TestPasswordResetEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)

	ticket, err := f.auth.InitPasswordReset(ctx, "alice@example.com", testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	require.NoError(t, f.auth.CompletePasswordReset(ctx, ticket, "reset-password", testMeta))

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "reset-password", Meta: testMeta})
	require.NoError(t, err)
	assert.NotNil(t, out.Bundle)
}

func TestAuditFailureDegradesToWarning(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedAlice(t)
	f.store.FailAudit = true

	out, err := f.auth.Login(ctx, LoginInput{Identifier: "alice@example.com", Password: "alice-password", Meta: testMeta})
	require.NoError(t, err)
	require.NotNil(t, out.Bundle)
	assert.Contains(t, out.Warnings, "audit write failed")
}
