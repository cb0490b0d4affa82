package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds application configuration
type Config struct {
	Port          string
	DBConn        string
	Storage       string
	LogLevel      string
	JWTSecret     string
	JWTTTL        time.Duration
	BcryptCost    int
	HMACSecret    string
	EncryptionKey string

	CardBIN           string
	CardValidityYears int

	SweepSchedule string
	SweepTimezone string
	DBLockTimeout time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	ReportEmail  string

	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

var binPattern = regexp.MustCompile(`^\d{4}$`)

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		Storage:       getEnv("STORAGE", StoragePostgres),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		HMACSecret:    getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		CardBIN:       getEnv("CARD_BIN", "4000"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "0 0 * * *"),
		SweepTimezone: getEnv("SWEEP_TIMEZONE", "UTC"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "noreply@bank.local"),
		ReportEmail:   getEnv("REPORT_EMAIL", ""),

		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DBLockTimeout, err = getDuration("DB_LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CardValidityYears, err = getInt("CARD_VALIDITY_YEARS", 5); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getInt("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return nil, err
	}

	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage)
	}
	if cfg.Storage == StoragePostgres && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("JWT_TTL must be positive")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if _, err := cfg.EncryptionKeyBytes(); err != nil {
		return nil, err
	}
	if !binPattern.MatchString(cfg.CardBIN) {
		return nil, fmt.Errorf("CARD_BIN must be 4 digits, got %q", cfg.CardBIN)
	}
	if cfg.CardValidityYears <= 0 {
		return nil, fmt.Errorf("CARD_VALIDITY_YEARS must be positive")
	}
	if _, err := time.LoadLocation(cfg.SweepTimezone); err != nil {
		return nil, fmt.Errorf("invalid SWEEP_TIMEZONE: %w", err)
	}
	if cfg.BootstrapAdminUsername != "" && cfg.BootstrapAdminPassword == "" {
		return nil, fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_USERNAME is set")
	}

	return cfg, nil
}

// EncryptionKeyBytes decodes the hex AES key; it must be 16, 24 or 32 bytes.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 16, 24 or 32 bytes, got %d", len(key))
}

// MailEnabled reports whether sweep reports can be sent.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.ReportEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultVal int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}
