package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/filmgrid/auth-service/internal/storage"
)

// TicketStore keeps short-lived single-use proof tokens (MFA challenges,
// password-change/reset tickets) in redis. The store's own key atomicity is
// what makes redemption safe across server processes; there is no in-process
// locking.
type TicketStore struct {
	client *redis.Client
}

func NewTicketStore(client *redis.Client) *TicketStore {
	return &TicketStore{client: client}
}

func (s *TicketStore) IssueTicket(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("issue ticket: %w", err)
	}
	return nil
}

// RedeemTicket reads without consuming. A miss is not an error condition for
// the caller beyond "ticket invalid or expired".
func (s *TicketStore) RedeemTicket(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrTicketNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redeem ticket: %w", err)
	}
	return value, nil
}

// TakeTicket atomically reads and deletes, so two concurrent redemptions of
// the same ticket can never both succeed.
func (s *TicketStore) TakeTicket(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrTicketNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take ticket: %w", err)
	}
	return value, nil
}

func (s *TicketStore) DeleteTicket(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return nil
}
