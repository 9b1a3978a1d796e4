package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
)

// TOTPService verifies six-digit TOTP codes against a user's base32 secret,
// tolerating one period of clock drift either way.
type TOTPService struct {
	issuerName string
	now        func() time.Time
}

func NewTOTPService(issuerName string) *TOTPService {
	return &TOTPService{issuerName: issuerName, now: time.Now}
}

// GenerateSecret enrolls an account: returns the base32 secret and the
// otpauth:// provisioning URL for authenticator apps.
func (s *TOTPService) GenerateSecret(accountName string) (secret, url string, err error) {
	if strings.TrimSpace(accountName) == "" {
		return "", "", fmt.Errorf("account name must not be empty")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuerName,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  totpSecretSize,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

func (s *TOTPService) VerifyCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
