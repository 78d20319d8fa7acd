package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	NATSURL        string   `mapstructure:"NATS_URL"`
	NATSStoreDir   string   `mapstructure:"NATS_STORE_DIR"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	Timezone       string   `mapstructure:"TIMEZONE"`

	BoardCacheTTL               time.Duration `mapstructure:"BOARD_CACHE_TTL"`
	SessionTTL                  time.Duration `mapstructure:"SESSION_TTL"`
	DischargeJustificationAfter time.Duration `mapstructure:"DISCHARGE_JUSTIFICATION_AFTER"`
	LongStayDays                int           `mapstructure:"LONG_STAY_DAYS"`
	ReadmissionWindowDays       int           `mapstructure:"READMISSION_WINDOW_DAYS"`
}

// MinSigningKeyLen is the shortest HMAC key accepted for session tokens.
const MinSigningKeyLen = 32

// devSigningKey is only used when ENV=development and no key is configured.
const devSigningKey = "bedboard-development-signing-key-not-for-prod"

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "NATS_URL", "NATS_STORE_DIR",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "SESSION_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TIMEZONE",
	"BOARD_CACHE_TTL", "DISCHARGE_JUSTIFICATION_AFTER",
	"LONG_STAY_DAYS", "READMISSION_WINDOW_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("NATS_STORE_DIR", "./data/nats")
	v.SetDefault("AUTH_ISSUER", "bedboard")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("BOARD_CACHE_TTL", "30s")
	v.SetDefault("DISCHARGE_JUSTIFICATION_AFTER", "5h")
	v.SetDefault("LONG_STAY_DAYS", 15)
	v.SetDefault("READMISSION_WINDOW_DAYS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = splitList(cfg.CORSOrigins[0])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.AuthSigningKey == "" && cfg.IsDev() {
		cfg.AuthSigningKey = devSigningKey
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDevSigningKey reports whether session tokens are signed with the
// built-in development key.
func (c *Config) UsesDevSigningKey() bool {
	return c.AuthSigningKey == devSigningKey
}

// Location resolves TIMEZONE. Day counts (occupation days, long stay,
// readmission windows) are computed on this calendar.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key of at least MinSigningKeyLen bytes is required, and the
// development key is refused.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if c.UsesDevSigningKey() {
			return fmt.Errorf("AUTH_SIGNING_KEY must not be the development key when ENV=%q", c.Env)
		}
	}
	if len(c.AuthSigningKey) < MinSigningKeyLen {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least %d bytes, got %d", MinSigningKeyLen, len(c.AuthSigningKey))
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.BoardCacheTTL < 0 {
		return fmt.Errorf("BOARD_CACHE_TTL must not be negative, got %s", c.BoardCacheTTL)
	}
	if c.DischargeJustificationAfter <= 0 {
		return fmt.Errorf("DISCHARGE_JUSTIFICATION_AFTER must be positive, got %s", c.DischargeJustificationAfter)
	}
	if c.LongStayDays <= 0 {
		return fmt.Errorf("LONG_STAY_DAYS must be positive, got %d", c.LongStayDays)
	}
	if c.ReadmissionWindowDays <= 0 {
		return fmt.Errorf("READMISSION_WINDOW_DAYS must be positive, got %d", c.ReadmissionWindowDays)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a known location: %w", c.Timezone, err)
	}
	return nil
}
