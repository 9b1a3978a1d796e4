package util

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 720 * time.Hour
	defaultMfaTicketTTL   = 5 * time.Minute
	defaultPwdTicketTTL   = 10 * time.Minute
	defaultTokenIssuer    = "filmgrid-auth"
	defaultTOTPIssuerName = "FilmGrid"

	RefreshTokenBytes = 32
	JWTLeeWay         = 5 * time.Second
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

// TokenConfig is built once at startup and immutable afterwards; the signing
// key never lives in a global.
type TokenConfig struct {
	JwtSecretKey      []byte
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	MfaTicketTTL      time.Duration
	PasswordTicketTTL time.Duration
}

func NewTokenConfig() *TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	issuer := os.Getenv("TOKEN_ISSUER")
	if issuer == "" {
		issuer = defaultTokenIssuer
	}
	return &TokenConfig{
		JwtSecretKey:      []byte(secret),
		Issuer:            issuer,
		AccessTTL:         parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTTL:        parseDurationOrDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL),
		MfaTicketTTL:      parseDurationOrDefault("MFA_TICKET_TTL", defaultMfaTicketTTL),
		PasswordTicketTTL: parseDurationOrDefault("PASSWORD_TICKET_TTL", defaultPwdTicketTTL),
	}
}

func GetTOTPIssuerName() string {
	if name := os.Getenv("TOTP_ISSUER_NAME"); name != "" {
		return name
	}
	return defaultTOTPIssuerName
}

func GetSecurityWebhookURL() string {
	return os.Getenv("SECURITY_WEBHOOK_URL")
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}
