package models

import "time"

// RefreshToken is the persisted record of one opaque refresh token. Only the
// SHA-256 hash of the presented value is stored; TokenHash is the lookup key.
type RefreshToken struct {
	TokenHash      string     `json:"-"`
	UserID         int64      `json:"user_id"`
	SessionID      string     `json:"session_id"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	RevokedByIP    string     `json:"revoked_by_ip,omitempty"`
	ReplacedByHash string     `json:"-"`
}

// IsActive reports whether the token may still be rotated: never revoked and
// not past its expiry. Expiry is passive, checked at read time.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
