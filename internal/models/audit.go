package models

import "time"

const (
	AuditActionLogin          = "login"
	AuditActionMfaChallenge   = "mfa_challenge"
	AuditActionMfaVerify      = "mfa_verify"
	AuditActionRefresh        = "token_refresh"
	AuditActionLogout         = "logout"
	AuditActionLogoutAll      = "logout_all"
	AuditActionSSOLogin       = "sso_login"
	AuditActionSSOProvision   = "sso_provision"
	AuditActionPasswordChange = "password_change"
	AuditActionPasswordReset  = "password_reset"

	AuditResultSuccess  = "success"
	AuditResultRejected = "rejected"
)

type AuditEntry struct {
	ID        int64     `json:"id"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	Action    string    `json:"action"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}
