package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret       string `mapstructure:"JWT_SECRET"`
	JWTExpiresHours int    `mapstructure:"JWT_EXPIRES_HOURS"`

	SchedulerAPIURL   string `mapstructure:"SCHEDULER_API_URL"`
	SchedulerAPIToken string `mapstructure:"SCHEDULER_API_TOKEN"`

	VoucherAPIURL string `mapstructure:"VOUCHER_API_URL"`
	VoucherAPIKey string `mapstructure:"VOUCHER_API_KEY"`
	VoucherOrgID  string `mapstructure:"VOUCHER_ORG_ID"`

	InvoicerAPIURL    string `mapstructure:"INVOICER_API_URL"`
	InvoicerAPIKey    string `mapstructure:"INVOICER_API_KEY"`
	InvoicerCompanyID string `mapstructure:"INVOICER_COMPANY_ID"`

	SyncIntervalMinutes int `mapstructure:"SYNC_INTERVAL_MINUTES"`
	SyncDaysBack        int `mapstructure:"SYNC_DAYS_BACK"`
	SyncRetryAttempts   int `mapstructure:"SYNC_RETRY_ATTEMPTS"`
	SyncRetryDelayMS    int `mapstructure:"SYNC_RETRY_DELAY_MS"`
	SyncBatchSize       int `mapstructure:"SYNC_BATCH_SIZE"`

	HTTPTimeoutSeconds int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
	WebhookSecret      string `mapstructure:"WEBHOOK_SECRET"`
	MigrationsDir      string `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_EXPIRES_HOURS", 24)
	v.SetDefault("SYNC_INTERVAL_MINUTES", 60)
	v.SetDefault("SYNC_DAYS_BACK", 7)
	v.SetDefault("SYNC_RETRY_ATTEMPTS", 3)
	v.SetDefault("SYNC_RETRY_DELAY_MS", 1000)
	v.SetDefault("SYNC_BATCH_SIZE", 500)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_EXPIRES_HOURS")
	v.BindEnv("SCHEDULER_API_URL")
	v.BindEnv("SCHEDULER_API_TOKEN")
	v.BindEnv("VOUCHER_API_URL")
	v.BindEnv("VOUCHER_API_KEY")
	v.BindEnv("VOUCHER_ORG_ID")
	v.BindEnv("INVOICER_API_URL")
	v.BindEnv("INVOICER_API_KEY")
	v.BindEnv("INVOICER_COMPANY_ID")
	v.BindEnv("SYNC_INTERVAL_MINUTES")
	v.BindEnv("SYNC_DAYS_BACK")
	v.BindEnv("SYNC_RETRY_ATTEMPTS")
	v.BindEnv("SYNC_RETRY_DELAY_MS")
	v.BindEnv("SYNC_BATCH_SIZE")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")
	v.BindEnv("WEBHOOK_SECRET")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: unauthenticated requests are granted admin access.")
		log.Println("WARNING: set ENV=production and a strong JWT_SECRET before deploying.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// JWTExpiry returns the configured token lifetime.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiresHours) * time.Hour
}

// HTTPTimeout returns the per-request timeout for external API calls.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// SyncRetryDelay returns the pause between fetch retry attempts.
func (c *Config) SyncRetryDelay() time.Duration {
	return time.Duration(c.SyncRetryDelayMS) * time.Millisecond
}

// SchedulerEnabled reports whether the appointment-scheduler source has
// credentials configured.
func (c *Config) SchedulerEnabled() bool {
	return c.SchedulerAPIURL != "" && c.SchedulerAPIToken != ""
}

// VoucherEnabled reports whether the voucher-issuer source has credentials
// configured.
func (c *Config) VoucherEnabled() bool {
	return c.VoucherAPIURL != "" && c.VoucherAPIKey != ""
}

// InvoicerEnabled reports whether the e-invoicing source has credentials
// configured.
func (c *Config) InvoicerEnabled() bool {
	return c.InvoicerAPIURL != "" && c.InvoicerAPIKey != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so that real authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.SyncIntervalMinutes < 0 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must not be negative, got %d", c.SyncIntervalMinutes)
	}
	if c.SyncDaysBack <= 0 {
		return fmt.Errorf("SYNC_DAYS_BACK must be positive, got %d", c.SyncDaysBack)
	}
	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
	}
	return nil
}
