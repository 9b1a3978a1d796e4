package models

import "time"

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusLocked  UserStatus = "locked"
	UserStatusDeleted UserStatus = "deleted"
)

type User struct {
	ID              int64      `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	PasswordHash    string     `json:"-"`
	Status          UserStatus `json:"status"`
	IsEmailVerified bool       `json:"is_email_verified"`
	MfaEnabled      bool       `json:"mfa_enabled"`
	MfaSecret       string     `json:"-"`
	ProviderSub     string     `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CanLogin reports whether the account is eligible for authentication.
// The password check is still performed even when this is false, so a
// locked account never reveals password correctness.
func (u *User) CanLogin() bool {
	return u.Status == UserStatusActive && u.IsEmailVerified
}

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

const DefaultRoleName = "viewer"
