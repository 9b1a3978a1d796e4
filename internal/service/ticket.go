package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/filmgrid/auth-service/internal/storage"
)

// Ticket purposes are separate keyspaces: an MFA ticket can never be redeemed
// as a password-change ticket and vice versa.
const (
	purposeMfa            = "mfa"
	purposePasswordChange = "pwdchange"
	purposePasswordReset  = "pwdreset"
)

// TicketService issues and redeems short-lived single-use proof tokens over
// the shared key-value store. A ticket's value is the user id it vouches for.
type TicketService struct {
	store       storage.TicketStore
	mfaTTL      time.Duration
	passwordTTL time.Duration
}

func NewTicketService(store storage.TicketStore, mfaTTL, passwordTTL time.Duration) *TicketService {
	return &TicketService{store: store, mfaTTL: mfaTTL, passwordTTL: passwordTTL}
}

func ticketKey(purpose, id string) string {
	return purpose + ":" + id
}

func (s *TicketService) issue(ctx context.Context, purpose, id string, userID int64, ttl time.Duration) error {
	value := strconv.FormatInt(userID, 10)
	if err := s.store.IssueTicket(ctx, ticketKey(purpose, id), value, ttl); err != nil {
		return fmt.Errorf("issue %s ticket: %w", purpose, err)
	}
	return nil
}

// peek reads the ticket without consuming it. A store miss maps to
// ErrTicketInvalid, never an internal error.
func (s *TicketService) peek(ctx context.Context, purpose, id string) (int64, error) {
	value, err := s.store.RedeemTicket(ctx, ticketKey(purpose, id))
	if errors.Is(err, storage.ErrTicketNotFound) {
		return 0, ErrTicketInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("redeem %s ticket: %w", purpose, err)
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrTicketInvalid
	}
	return userID, nil
}

// take consumes the ticket atomically; of two concurrent redeemers exactly
// one succeeds.
func (s *TicketService) take(ctx context.Context, purpose, id string) (int64, error) {
	value, err := s.store.TakeTicket(ctx, ticketKey(purpose, id))
	if errors.Is(err, storage.ErrTicketNotFound) {
		return 0, ErrTicketInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("take %s ticket: %w", purpose, err)
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrTicketInvalid
	}
	return userID, nil
}

func (s *TicketService) IssueMfaTicket(ctx context.Context, id string, userID int64) error {
	return s.issue(ctx, purposeMfa, id, userID, s.mfaTTL)
}

func (s *TicketService) PeekMfaTicket(ctx context.Context, id string) (int64, error) {
	return s.peek(ctx, purposeMfa, id)
}

func (s *TicketService) TakeMfaTicket(ctx context.Context, id string) (int64, error) {
	return s.take(ctx, purposeMfa, id)
}

func (s *TicketService) IssuePasswordChangeTicket(ctx context.Context, id string, userID int64) error {
	return s.issue(ctx, purposePasswordChange, id, userID, s.passwordTTL)
}

func (s *TicketService) TakePasswordChangeTicket(ctx context.Context, id string) (int64, error) {
	return s.take(ctx, purposePasswordChange, id)
}

func (s *TicketService) IssuePasswordResetTicket(ctx context.Context, id string, userID int64) error {
	return s.issue(ctx, purposePasswordReset, id, userID, s.passwordTTL)
}

func (s *TicketService) TakePasswordResetTicket(ctx context.Context, id string) (int64, error) {
	return s.take(ctx, purposePasswordReset, id)
}
