package models

import "time"

// Session is a logical login session, independent of token material. One
// session accumulates many refresh tokens over its lifetime as they rotate.
// Sessions are never deleted, only marked revoked, so the row doubles as an
// audit trail of devices.
type Session struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	IsRevoked  bool      `json:"is_revoked"`
}
