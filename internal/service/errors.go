package service

import "errors"

// Error taxonomy exposed to the HTTP layer. Invalid credentials reads the
// same whether the account exists or not; locked/unverified are distinct but
// never reveal password correctness.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is not eligible to sign in")
	ErrAccountUnverified  = errors.New("email address is not verified")
	ErrTicketInvalid      = errors.New("ticket invalid or expired")
	ErrTokenInvalid       = errors.New("refresh token invalid, expired, or revoked")
	ErrProviderConflict   = errors.New("account is already linked to a different provider identity")
	ErrInvalidSigningKey  = errors.New("invalid signing method")
)
