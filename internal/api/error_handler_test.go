package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filmgrid/auth-service/internal/service"
)

func TestStatusForServiceError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrTokenInvalid, http.StatusUnauthorized},
		{service.ErrAccountLocked, http.StatusForbidden},
		{service.ErrAccountUnverified, http.StatusForbidden},
		{service.ErrTicketInvalid, http.StatusBadRequest},
		{service.ErrProviderConflict, http.StatusConflict},
	}
	for _, tc := range cases {
		status, ok := statusForServiceError(tc.err)
		assert.True(t, ok, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}

	_, ok := statusForServiceError(assert.AnError)
	assert.False(t, ok)
}
