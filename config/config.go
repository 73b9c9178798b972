package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// AppConfig holds the application configuration
type AppConfig struct {
	Env             string   `mapstructure:"ENV"`
	Port            string   `mapstructure:"PORT"`
	DBURL           string   `mapstructure:"DB_URL"`
	DBMaxOpenConns  int      `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns  int      `mapstructure:"DB_MAX_IDLE_CONNS"`
	RedisAddress    string   `mapstructure:"REDIS_URL"`
	BearerToken     string   `mapstructure:"BEARER_TOKEN"`
	SymmetricKey    string   `mapstructure:"SYMMETRIC_KEY"`
	PatientIDPrefix string   `mapstructure:"PATIENT_ID_PREFIX"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
	LogLevel        string   `mapstructure:"LOG_LEVEL"`
	LogFile         string   `mapstructure:"LOG_FILE"`
	AlertsEnabled   bool     `mapstructure:"ALERTS_ENABLED"`
	SMTPHost        string   `mapstructure:"SMTP_HOST"`
	SMTPPort        int      `mapstructure:"SMTP_PORT"`
	SMTPUser        string   `mapstructure:"SMTP_USER"`
	SMTPPass        string   `mapstructure:"SMTP_PASS"`
}

var boundKeys = []string{
	"ENV", "PORT", "DB_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "REDIS_URL",
	"BEARER_TOKEN", "SYMMETRIC_KEY", "PATIENT_ID_PREFIX", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FILE", "ALERTS_ENABLED",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "production")
	v.SetDefault("PORT", "8930")
	v.SetDefault("DB_MAX_OPEN_CONNS", 40)
	v.SetDefault("DB_MAX_IDLE_CONNS", 20)
	v.SetDefault("PATIENT_ID_PREFIX", "HC")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 15)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALERTS_ENABLED", false)
	v.SetDefault("SMTP_PORT", 587)

	for _, key := range boundKeys {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *AppConfig) Validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is required")
	}
	if c.BearerToken == "" {
		return errors.New("BEARER_TOKEN is required")
	}
	if len(c.SymmetricKey) != 32 {
		return errors.Errorf("SYMMETRIC_KEY must be 32 bytes long, got %d", len(c.SymmetricKey))
	}
	if c.PatientIDPrefix == "" {
		return errors.New("PATIENT_ID_PREFIX must not be empty")
	}
	return nil
}

// GetBearerToken returns the BearerToken from the config
func (c *AppConfig) GetBearerToken() string {
	return c.BearerToken
}

// IsDev reports whether the service runs in development mode.
func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}
