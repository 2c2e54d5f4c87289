package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Store selection.
	DBBackend      string        `mapstructure:"DB_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	StoreTxTimeout time.Duration `mapstructure:"STORE_TX_TIMEOUT"`

	// Auth is disabled when both are empty.
	JWTSecret    string `mapstructure:"JWT_HMAC_SECRET"`
	StaticTokens string `mapstructure:"STATIC_TOKENS"`

	CORSOrigins       string `mapstructure:"CORS_ORIGINS"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis caches directory lookups; empty address disables the cache.
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	RedisPassword     string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int           `mapstructure:"REDIS_DB"`
	DirectoryCacheTTL time.Duration `mapstructure:"DIRECTORY_CACHE_TTL"`

	// Slot generation.
	BusinessHoursStart int `mapstructure:"BUSINESS_HOURS_START"`
	BusinessHoursEnd   int `mapstructure:"BUSINESS_HOURS_END"`
	SlotMinutes        int `mapstructure:"SLOT_MINUTES"`
}

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Load reads .env (if present), an optional config.yaml from . or ./config,
// and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_BACKEND", BackendPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "scheduler.db")
	v.SetDefault("STORE_TX_TIMEOUT", "5s")
	v.SetDefault("JWT_HMAC_SECRET", "")
	v.SetDefault("STATIC_TOKENS", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 300)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DIRECTORY_CACHE_TTL", "10m")
	v.SetDefault("BUSINESS_HOURS_START", 9)
	v.SetDefault("BUSINESS_HOURS_END", 17)
	v.SetDefault("SLOT_MINUTES", 60)
}

func (c *Config) Validate() error {
	switch c.DBBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required when DB_BACKEND=postgres")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH required when DB_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("unknown DB_BACKEND %q", c.DBBackend)
	}
	if c.StoreTxTimeout <= 0 {
		return errors.New("STORE_TX_TIMEOUT must be positive")
	}
	if c.SlotMinutes <= 0 {
		return errors.New("SLOT_MINUTES must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Tokens returns the configured static bearer tokens.
func (c *Config) Tokens() []string {
	return splitList(c.StaticTokens)
}

func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

func (c *Config) SlotLength() time.Duration {
	return time.Duration(c.SlotMinutes) * time.Minute
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
