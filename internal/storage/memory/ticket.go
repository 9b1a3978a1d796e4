package memory

import (
	"context"
	"sync"
	"time"

	"github.com/filmgrid/auth-service/internal/storage"
)

type ticketEntry struct {
	value     string
	expiresAt time.Time
}

// TicketStore is a map-backed storage.TicketStore with lazy expiry, used by
// tests instead of redis.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source so tests can expire tickets.
func (s *TicketStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *TicketStore) IssueTicket(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[key] = ticketEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *TicketStore) RedeemTicket(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tickets[key]
	if !ok || !entry.expiresAt.After(s.now()) {
		delete(s.tickets, key)
		return "", storage.ErrTicketNotFound
	}
	return entry.value, nil
}

func (s *TicketStore) TakeTicket(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tickets[key]
	delete(s.tickets, key)
	if !ok || !entry.expiresAt.After(s.now()) {
		return "", storage.ErrTicketNotFound
	}
	return entry.value, nil
}

func (s *TicketStore) DeleteTicket(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, key)
	return nil
}
