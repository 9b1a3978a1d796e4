package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/auth-service/internal/storage/memory"
)

func newTestTicketService() (*TicketService, *memory.TicketStore) {
	store := memory.NewTicketStore()
	return NewTicketService(store, 5*time.Minute, 10*time.Minute), store
}

func TestTicketPeekDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTicketService()

	require.NoError(t, svc.IssueMfaTicket(ctx, "ticket-1", 42))

	for i := 0; i < 3; i++ {
		userID, err := svc.PeekMfaTicket(ctx, "ticket-1")
		require.NoError(t, err)
		assert.Equal(t, int64(42), userID)
	}
}

func TestTicketTakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTicketService()

	require.NoError(t, svc.IssueMfaTicket(ctx, "ticket-1", 42))

	userID, err := svc.TakeMfaTicket(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	_, err = svc.TakeMfaTicket(ctx, "ticket-1")
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestTicketPurposesAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTicketService()

	require.NoError(t, svc.IssueMfaTicket(ctx, "ticket-1", 42))

	_, err := svc.TakePasswordChangeTicket(ctx, "ticket-1")
	assert.ErrorIs(t, err, ErrTicketInvalid)
	_, err = svc.TakePasswordResetTicket(ctx, "ticket-1")
	assert.ErrorIs(t, err, ErrTicketInvalid)

	// The MFA ticket is untouched by the cross-purpose attempts.
	_, err = svc.TakeMfaTicket(ctx, "ticket-1")
	assert.NoError(t, err)
}

func TestTicketExpires(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestTicketService()

	require.NoError(t, svc.IssueMfaTicket(ctx, "ticket-1", 42))

	store.SetClock(func() time.Time { return time.Now().Add(6 * time.Minute) })

	_, err := svc.PeekMfaTicket(ctx, "ticket-1")
	assert.ErrorIs(t, err, ErrTicketInvalid)
	_, err = svc.TakeMfaTicket(ctx, "ticket-1")
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestTicketUnknownID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestTicketService()

	_, err := svc.PeekMfaTicket(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrTicketInvalid)
}
