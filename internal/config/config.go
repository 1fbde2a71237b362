package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed by value to components.
// Nothing mutates it afterwards.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Storage   StorageConfig
	Jobs      JobsConfig
	Contracts ContractsConfig
	LogLevel  string
	BaseURL   string
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	Username        string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	MaxFailedAttempts  int
	LockoutDuration    time.Duration
	TwoFactorMaxFailed int
	TwoFactorLockout   time.Duration
	TOTPIssuer         string
	BcryptCost         int
	ExternalJWKSURL    string // when set, tokens are verified against the IdP's JWKS
}

type SMTPConfig struct {
	Host        string
	Port        int
	From        string
	SendTimeout time.Duration
}

// Enabled reports whether real mail delivery is configured. Without a host
// the mailer degrades to a logged no-op.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type StorageConfig struct {
	DataDir       string
	RetentionDays int
}

type JobsConfig struct {
	DailyHourUTC int
}

type ContractsConfig struct {
	NumberPrefix string
}

const minSecretLength = 32

// Load reads .env (if present) and the process environment and validates
// the result. A JWT secret shorter than 32 characters refuses startup.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Server: ServerConfig{
			Port:           envOr("PORT", "8080"),
			ReadTimeout:    envDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   envDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    envDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TrustedProxies: envList("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			Host:            envOr("DB_HOST", "localhost"),
			Port:            envOr("DB_PORT", "5432"),
			Username:        envOr("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            envOr("DB_NAME", "contracts"),
			SSLMode:         envOr("DB_SSLMODE", "disable"),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:     envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:    envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			MaxFailedAttempts:  envInt("MAX_FAILED_ATTEMPTS", 5),
			LockoutDuration:    envDuration("LOCKOUT_DURATION", 15*time.Minute),
			TwoFactorMaxFailed: envInt("TWO_FACTOR_MAX_FAILED", 5),
			TwoFactorLockout:   envDuration("TWO_FACTOR_LOCKOUT", 10*time.Minute),
			TOTPIssuer:         envOr("TOTP_ISSUER", "Vertragsmanagement"),
			BcryptCost:         envInt("BCRYPT_COST", 10),
			ExternalJWKSURL:    os.Getenv("EXTERNAL_JWKS_URL"),
		},
		SMTP: SMTPConfig{
			Host:        os.Getenv("SMTP_HOST"),
			Port:        envInt("SMTP_PORT", 587),
			From:        envOr("SMTP_FROM", "noreply@localhost"),
			SendTimeout: envDuration("SMTP_SEND_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			DataDir:       envOr("STORAGE_DIR", "data/documents"),
			RetentionDays: envInt("DOCUMENT_RETENTION_DAYS", 90),
		},
		Jobs: JobsConfig{
			DailyHourUTC: envInt("JOBS_DAILY_HOUR_UTC", 3),
		},
		Contracts: ContractsConfig{
			NumberPrefix: envOr("CONTRACT_NUMBER_PREFIX", "CTR"),
		},
		LogLevel: envOr("LOG_LEVEL", "info"),
		BaseURL:  envOr("BASE_URL", "http://localhost:8080"),
	}

	if len(cfg.Auth.JWTSecret) < minSecretLength {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d characters, got %d", minSecretLength, len(cfg.Auth.JWTSecret))
	}
	if cfg.Storage.RetentionDays <= 0 {
		return Config{}, fmt.Errorf("DOCUMENT_RETENTION_DAYS must be positive, got %d", cfg.Storage.RetentionDays)
	}
	if cfg.Jobs.DailyHourUTC < 0 || cfg.Jobs.DailyHourUTC > 23 {
		return Config{}, fmt.Errorf("JOBS_DAILY_HOUR_UTC must be 0-23, got %d", cfg.Jobs.DailyHourUTC)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
