package models

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id,omitempty"`
}

// LoginResponse is either a token bundle or an MFA challenge, never both.
type LoginResponse struct {
	RequiresMfa  bool   `json:"requires_mfa,omitempty"`
	MfaTicket    string `json:"mfa_ticket,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
}

type MfaVerifyRequest struct {
	MfaTicket string `json:"mfa_ticket"`
	Code      string `json:"code"`
	DeviceID  string `json:"device_id,omitempty"`
}

type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	All          bool   `json:"all,omitempty"`
}

type SSOLoginRequest struct {
	Provider    string `json:"provider"`
	ProviderSub string `json:"provider_sub"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
}

type PasswordChangeInitRequest struct {
	CurrentPassword string `json:"current_password"`
}

type PasswordChangeInitResponse struct {
	ChangeTicket string `json:"change_ticket"`
}

type PasswordChangeRequest struct {
	ChangeTicket string `json:"change_ticket"`
	NewPassword  string `json:"new_password"`
}

type PasswordResetInitRequest struct {
	Email string `json:"email"`
}

type PasswordResetInitResponse struct {
	ResetTicket string `json:"reset_ticket,omitempty"`
}

type PasswordResetRequest struct {
	ResetTicket string `json:"reset_ticket"`
	NewPassword string `json:"new_password"`
}
