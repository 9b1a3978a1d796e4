package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
)

// RequestMeta identifies the caller of a login/logout/rotation request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type LoginInput struct {
	Identifier string
	Password   string
	DeviceID   string
	Meta       RequestMeta
}

// TokenBundle is the success payload of every login-shaped flow.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	DeviceID     string
}

// LoginOutcome separates the primary result from non-fatal warnings: a failed
// audit write degrades the outcome without failing it.
type LoginOutcome struct {
	RequiresMfa bool
	MfaTicket   string
	Bundle      *TokenBundle
	Warnings    []string
}

type SSOInput struct {
	Provider    string
	ProviderSub string
	Email       string
	DisplayName string
	DeviceID    string
	Meta        RequestMeta
}

// AuthService coordinates credential check, MFA gate, session creation, token
// issuance, and audit for every login-shaped flow. The session/token/audit
// writes of one attempt share a single ReadCommitted transaction.
type AuthService struct {
	storage storage.Storage
	tickets *TicketService
	secrets *PasswordService
	totp    *TOTPService
	tokens  *TokenService
	refresh *RefreshTokenService
	alerts  *SecurityAlertWebhook
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewAuthService(
	st storage.Storage,
	tickets *TicketService,
	secrets *PasswordService,
	totp *TOTPService,
	tokens *TokenService,
	refresh *RefreshTokenService,
	alerts *SecurityAlertWebhook,
	log *zap.SugaredLogger,
) *AuthService {
	return &AuthService{
		storage: st,
		tickets: tickets,
		secrets: secrets,
		totp:    totp,
		tokens:  tokens,
		refresh: refresh,
		alerts:  alerts,
		log:     log,
		now:     time.Now,
	}
}

// findByIdentifier accepts an email or a username; email is tried first.
func (s *AuthService) findByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		user, err := s.storage.FindUserByEmail(ctx, identifier)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, storage.ErrUserNotFound) {
			return nil, err
		}
	}
	return s.storage.FindUserByUsername(ctx, identifier)
}

// Login runs CREDENTIAL_CHECK and either completes the session (MFA disabled)
// or suspends the attempt behind a 5-minute MFA ticket.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginOutcome, error) {
	user, err := s.findByIdentifier(ctx, in.Identifier)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.auditRejected(ctx, nil, models.AuditActionLogin, "unknown identifier", in.Meta)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// The password is always checked, even for ineligible accounts, so the
	// response timing never reveals whether the secret was correct.
	passwordOK, err := s.secrets.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if eligErr := s.eligibility(user); eligErr != nil {
		s.auditRejected(ctx, &user.ID, models.AuditActionLogin, eligErr.Error(), in.Meta)
		return nil, eligErr
	}
	if !passwordOK {
		s.auditRejected(ctx, &user.ID, models.AuditActionLogin, "wrong password", in.Meta)
		return nil, ErrInvalidCredentials
	}

	if user.MfaEnabled {
		ticket := uuid.NewString()
		if err := s.tickets.IssueMfaTicket(ctx, ticket, user.ID); err != nil {
			return nil, err
		}
		s.auditSuccess(ctx, &user.ID, models.AuditActionMfaChallenge, "mfa ticket issued", in.Meta)
		return &LoginOutcome{RequiresMfa: true, MfaTicket: ticket}, nil
	}

	return s.completeLogin(ctx, user, in.DeviceID, in.Meta, models.AuditActionLogin)
}

// VerifyMfaAndLogin resumes an MFA_PENDING attempt. A wrong code leaves the
// ticket valid for retries until its TTL; a correct code consumes the ticket
// atomically, so a second redemption of the same ticket fails.
func (s *AuthService) VerifyMfaAndLogin(ctx context.Context, ticket, code, deviceID string, meta RequestMeta) (*LoginOutcome, error) {
	userID, err := s.tickets.PeekMfaTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}

	user, err := s.storage.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !s.totp.VerifyCode(user.MfaSecret, code) {
		s.auditRejected(ctx, &user.ID, models.AuditActionMfaVerify, "wrong totp code", meta)
		return nil, ErrInvalidCredentials
	}

	// Consume only after the code checks out; losing the take race to a
	// concurrent redemption means the ticket was already spent.
	if _, err := s.tickets.TakeMfaTicket(ctx, ticket); err != nil {
		return nil, err
	}

	return s.completeLogin(ctx, user, deviceID, meta, models.AuditActionMfaVerify)
}

// completeLogin is SESSION_AND_TOKENS: session row, refresh token, audit and
// permission snapshot inside one transaction, access token minted from the
// forwarded snapshot after commit.
func (s *AuthService) completeLogin(ctx context.Context, user *models.User, deviceID string, meta RequestMeta, action string) (*LoginOutcome, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	var (
		roles   []string
		perms   []models.Permission
		refresh string
		out     LoginOutcome
		session models.Session
	)
	err := s.storage.WithinTx(ctx, func(st storage.Storage) error {
		var err error
		roles, err = st.GetRoleNamesForUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("resolve roles: %w", err)
		}
		codes, err := st.GetPermissionCodesForUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("resolve permissions: %w", err)
		}
		perms = models.ParsePermissions(codes)

		now := s.now().UTC()
		session = models.Session{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			DeviceID:   deviceID,
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		if err := st.CreateSession(ctx, &session); err != nil {
			return err
		}

		refresh, _, err = s.refresh.Generate(ctx, st, user.ID, session.ID)
		if err != nil {
			return err
		}

		// Best effort: an audit failure degrades to a warning instead of
		// rolling back the freshly created session.
		if err := s.appendAudit(ctx, st, &user.ID, action, models.AuditResultSuccess, "session "+session.ID, meta); err != nil {
			out.Warnings = append(out.Warnings, "audit write failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.IssueFromUser(ctx, user, session.ID, roles, perms)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	out.Bundle = &TokenBundle{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		SessionID:    session.ID,
		DeviceID:     deviceID,
	}
	return &out, nil
}

// LoginWithProvider is the SSO path: match by provider subject, fall back to
// linking by email, or provision a brand new account — all in one
// transaction with the session and token writes.
func (s *AuthService) LoginWithProvider(ctx context.Context, in SSOInput) (*LoginOutcome, error) {
	var user *models.User
	provisioned := false

	err := s.storage.WithinTx(ctx, func(st storage.Storage) error {
		existing, err := st.FindUserByProviderSub(ctx, in.ProviderSub)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("lookup by provider sub: %w", err)
		}

		byEmail, err := st.FindUserByEmail(ctx, in.Email)
		if err == nil {
			// Linking only when no conflicting subject is already set; a
			// different subject on the same email is a conflict the caller
			// has to resolve, never a silent overwrite.
			if byEmail.ProviderSub != "" && byEmail.ProviderSub != in.ProviderSub {
				return ErrProviderConflict
			}
			if byEmail.ProviderSub == "" {
				if err := st.LinkProviderSub(ctx, byEmail.ID, in.ProviderSub); err != nil {
					return fmt.Errorf("link provider: %w", err)
				}
				byEmail.ProviderSub = in.ProviderSub
			}
			user = byEmail
			return nil
		}
		if !errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("lookup by email: %w", err)
		}

		// First-class "new account via SSO": user, profile fields, and the
		// default role are provisioned in the same transaction.
		user = &models.User{
			Username:        in.Email,
			Email:           in.Email,
			DisplayName:     in.DisplayName,
			Status:          models.UserStatusActive,
			IsEmailVerified: true,
			ProviderSub:     in.ProviderSub,
		}
		if _, err := st.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("provision sso user: %w", err)
		}
		if err := st.AssignRole(ctx, user.ID, models.DefaultRoleName); err != nil {
			return err
		}
		provisioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if eligErr := s.eligibility(user); eligErr != nil {
		s.auditRejected(ctx, &user.ID, models.AuditActionSSOLogin, eligErr.Error(), in.Meta)
		return nil, eligErr
	}

	action := models.AuditActionSSOLogin
	if provisioned {
		action = models.AuditActionSSOProvision
	}
	return s.completeLogin(ctx, user, in.DeviceID, in.Meta, action)
}

// Rotate exchanges a refresh token for a fresh pair and raises a security
// alert when the rotation arrives from an IP the session has not seen.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string, meta RequestMeta) (*models.TokenPair, error) {
	result, err := s.refresh.Rotate(ctx, refreshToken, meta.IPAddress)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			s.auditRejected(ctx, nil, models.AuditActionRefresh, "invalid refresh token", meta)
		}
		return nil, err
	}

	if s.alerts != nil && result.PrevIP != "" && result.PrevIP != meta.IPAddress {
		s.alerts.NotifyIPChange(ctx, result.UserID, result.SessionID, result.PrevIP, meta.IPAddress, meta.UserAgent)
	}

	s.auditSuccess(ctx, &result.UserID, models.AuditActionRefresh, "session "+result.SessionID, meta)
	return &result.Pair, nil
}

// LogoutByToken revokes the presented refresh token and best-effort marks its
// session revoked. Idempotent by design: an unknown or already-revoked token
// still returns success, so logout never acts as a validity oracle.
func (s *AuthService) LogoutByToken(ctx context.Context, refreshToken string, meta RequestMeta) error {
	token, user, err := s.refresh.GetActive(ctx, refreshToken)
	if errors.Is(err, ErrTokenInvalid) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.storage.RevokeRefreshToken(ctx, token.TokenHash, meta.IPAddress, "", s.now().UTC()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if err := s.storage.MarkSessionRevoked(ctx, token.SessionID); err != nil {
		s.log.Warnw("failed to revoke session on logout", "session_id", token.SessionID, "error", err)
	}
	s.auditSuccess(ctx, &user.ID, models.AuditActionLogout, "session "+token.SessionID, meta)
	return nil
}

// LogoutSession is single-device logout for an authenticated user.
func (s *AuthService) LogoutSession(ctx context.Context, userID int64, sessionID string, meta RequestMeta) error {
	if _, err := s.refresh.RevokeBySession(ctx, userID, sessionID, meta.IPAddress); err != nil {
		return err
	}
	if err := s.storage.MarkSessionRevoked(ctx, sessionID); err != nil {
		s.log.Warnw("failed to revoke session", "session_id", sessionID, "error", err)
	}
	s.auditSuccess(ctx, &userID, models.AuditActionLogout, "session "+sessionID, meta)
	return nil
}

// LogoutEverywhere revokes every token and session of the user.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID int64, meta RequestMeta) (int64, error) {
	count, err := s.refresh.RevokeAllForUser(ctx, userID, meta.IPAddress)
	if err != nil {
		return 0, err
	}
	if _, err := s.storage.MarkAllSessionsRevokedForUser(ctx, userID); err != nil {
		s.log.Warnw("failed to revoke sessions", "user_id", userID, "error", err)
	}
	s.auditSuccess(ctx, &userID, models.AuditActionLogoutAll, fmt.Sprintf("%d tokens revoked", count), meta)
	return count, nil
}

// InitPasswordChange re-authenticates the user and issues a short-lived
// change ticket that the actual change must present.
func (s *AuthService) InitPasswordChange(ctx context.Context, userID int64, currentPassword string, meta RequestMeta) (string, error) {
	user, err := s.storage.FindUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	ok, err := s.secrets.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.auditRejected(ctx, &userID, models.AuditActionPasswordChange, "wrong current password", meta)
		return "", ErrInvalidCredentials
	}

	ticket := uuid.NewString()
	if err := s.tickets.IssuePasswordChangeTicket(ctx, ticket, userID); err != nil {
		return "", err
	}
	return ticket, nil
}

// CompletePasswordChange consumes the ticket, swaps the hash, and forces a
// logout everywhere: every refresh token and session dies with the old
// password.
func (s *AuthService) CompletePasswordChange(ctx context.Context, ticket, newPassword string, meta RequestMeta) error {
	userID, err := s.tickets.TakePasswordChangeTicket(ctx, ticket)
	if err != nil {
		return err
	}
	return s.replacePassword(ctx, userID, newPassword, models.AuditActionPasswordChange, meta)
}

// InitPasswordReset issues a reset ticket for the account behind the email.
// An unknown email yields no ticket and no error — no account enumeration.
// Delivering the ticket to the user is the email collaborator's job.
func (s *AuthService) InitPasswordReset(ctx context.Context, email string, meta RequestMeta) (string, error) {
	user, err := s.storage.FindUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	ticket := uuid.NewString()
	if err := s.tickets.IssuePasswordResetTicket(ctx, ticket, user.ID); err != nil {
		return "", err
	}
	return ticket, nil
}

func (s *AuthService) CompletePasswordReset(ctx context.Context, ticket, newPassword string, meta RequestMeta) error {
	userID, err := s.tickets.TakePasswordResetTicket(ctx, ticket)
	if err != nil {
		return err
	}
	return s.replacePassword(ctx, userID, newPassword, models.AuditActionPasswordReset, meta)
}

func (s *AuthService) replacePassword(ctx context.Context, userID int64, newPassword, action string, meta RequestMeta) error {
	hash, err := s.secrets.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	return s.storage.WithinTx(ctx, func(st storage.Storage) error {
		if err := st.UpdateUserPassword(ctx, userID, hash); err != nil {
			return err
		}
		if _, err := st.RevokeAllTokensForUser(ctx, userID, meta.IPAddress, now); err != nil {
			return err
		}
		if _, err := st.MarkAllSessionsRevokedForUser(ctx, userID); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, st, &userID, action, models.AuditResultSuccess, "all sessions revoked", meta); err != nil {
			s.log.Warnw("audit write failed", "action", action, "error", err)
		}
		return nil
	})
}

func (s *AuthService) eligibility(user *models.User) error {
	if user.Status != models.UserStatusActive {
		return ErrAccountLocked
	}
	if !user.IsEmailVerified {
		return ErrAccountUnverified
	}
	return nil
}

func (s *AuthService) appendAudit(ctx context.Context, st storage.AuditRepository, actorID *int64, action, result, detail string, meta RequestMeta) error {
	return st.AppendAudit(ctx, &models.AuditEntry{
		ActorID:   actorID,
		Action:    action,
		Result:    result,
		Detail:    detail,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	})
}

func (s *AuthService) auditSuccess(ctx context.Context, actorID *int64, action, detail string, meta RequestMeta) {
	if err := s.appendAudit(ctx, s.storage, actorID, action, models.AuditResultSuccess, detail, meta); err != nil {
		s.log.Warnw("audit write failed", "action", action, "error", err)
	}
}

func (s *AuthService) auditRejected(ctx context.Context, actorID *int64, action, detail string, meta RequestMeta) {
	if err := s.appendAudit(ctx, s.storage, actorID, action, models.AuditResultRejected, detail, meta); err != nil {
		s.log.Warnw("audit write failed", "action", action, "error", err)
	}
}
