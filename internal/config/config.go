package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	StoreBackend        string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	SupabaseURL         string        `mapstructure:"SUPABASE_URL"`
	SupabaseKey         string        `mapstructure:"SUPABASE_KEY"`
	OfflineSnapshot     string        `mapstructure:"OFFLINE_SNAPSHOT"`
	ClinicTimezone      string        `mapstructure:"CLINIC_TIMEZONE"`
	LookaheadDays       int           `mapstructure:"BOOKING_LOOKAHEAD_DAYS"`
	DefaultSlotInterval int           `mapstructure:"DEFAULT_SLOT_INTERVAL"`
	AdminEmail          string        `mapstructure:"ADMIN_EMAIL"`
	AdminPasswordHash   string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	JWTTTL              time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	SweepSchedule       string        `mapstructure:"SWEEP_SCHEDULE"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
}

var keys = []string{
	"PORT", "ENV", "STORE_BACKEND",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"SUPABASE_URL", "SUPABASE_KEY", "OFFLINE_SNAPSHOT",
	"CLINIC_TIMEZONE", "BOOKING_LOOKAHEAD_DAYS", "DEFAULT_SLOT_INTERVAL",
	"ADMIN_EMAIL", "ADMIN_PASSWORD_HASH", "JWT_SECRET", "JWT_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SWEEP_SCHEDULE", "SESSION_TTL",
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is loaded first without overriding variables that
// are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CLINIC_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("BOOKING_LOOKAHEAD_DAYS", 14)
	v.SetDefault("DEFAULT_SLOT_INTERVAL", 15)
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("SWEEP_SCHEDULE", "@every 15m")
	v.SetDefault("SESSION_TTL", "30m")

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = cfg.inferBackend()
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

func (c *Config) inferBackend() string {
	switch {
	case c.DatabaseURL != "":
		return BackendPostgres
	case c.SupabaseURL != "":
		return BackendSupabase
	default:
		return BackendMemory
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location loads CLINIC_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ClinicTimezone)
}

// Validate checks that the configuration is safe to run. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND is postgres"))
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_KEY are required when STORE_BACKEND is supabase"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be postgres, supabase or memory, got %q", c.StoreBackend))
	}

	if c.Env != "development" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("ENV must be development or production, got %q", c.Env))
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
		}
		if c.AdminEmail == "" || c.AdminPasswordHash == "" {
			errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD_HASH are required in production"))
		}
	}

	if c.LookaheadDays < 1 || c.LookaheadDays > 60 {
		errs = append(errs, fmt.Errorf("BOOKING_LOOKAHEAD_DAYS must be between 1 and 60, got %d", c.LookaheadDays))
	}
	if c.DefaultSlotInterval <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_SLOT_INTERVAL must be positive, got %d", c.DefaultSlotInterval))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("CLINIC_TIMEZONE: %w", err))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	return errors.Join(errs...)
}
