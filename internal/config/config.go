package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server
	App            string        `mapstructure:"APP"`
	Port           string        `mapstructure:"PORT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CorsOrigin     string        `mapstructure:"CORS_ORIGIN"`

	// Storage, first configured wins: Postgres, Supabase, SQLite, memory
	PostgresDSN           string `mapstructure:"POSTGRES_DSN"`
	PostgresMigrationsDir string `mapstructure:"POSTGRES_MIGRATIONS_DIR"`
	SupabaseURL           string `mapstructure:"SUPABASE_URL"`
	SupabaseServiceKey    string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	DBPath                string `mapstructure:"DB_PATH"`
	DBMigrationsDir       string `mapstructure:"DB_MIGRATIONS_DIR"`

	// Cache
	RedisURL string        `mapstructure:"REDIS_URL"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	// Admin endpoints are disabled when the hash is empty.
	AdminTokenHash string `mapstructure:"ADMIN_TOKEN_HASH"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Cron spec for recalculating the active year; empty disables it.
	RecalcSchedule string `mapstructure:"RECALC_SCHEDULE"`

	// Set by the Lambda runtime.
	LambdaFunctionName string `mapstructure:"AWS_LAMBDA_FUNCTION_NAME"`
}

var keys = []string{
	"APP",
	"PORT",
	"REQUEST_TIMEOUT",
	"CORS_ORIGIN",
	"POSTGRES_DSN",
	"POSTGRES_MIGRATIONS_DIR",
	"SUPABASE_URL",
	"SUPABASE_SERVICE_ROLE_KEY",
	"DB_PATH",
	"DB_MIGRATIONS_DIR",
	"REDIS_URL",
	"CACHE_TTL",
	"ADMIN_TOKEN_HASH",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"RECALC_SCHEDULE",
	"AWS_LAMBDA_FUNCTION_NAME",
}

// Load reads .env files (outside Lambda) and the environment.
func Load() (*Config, error) {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
		_ = godotenv.Load(".env", ".env.local")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("APP", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("RECALC_SCHEDULE", "")

	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about when unmarshalling.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.CorsOrigin = strings.TrimSpace(cfg.CorsOrigin)
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	cfg.SupabaseURL = strings.TrimSpace(cfg.SupabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required with SUPABASE_URL")
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.App == "" || c.App == "development"
}

func (c *Config) IsLambda() bool {
	return c.LambdaFunctionName != ""
}

func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
