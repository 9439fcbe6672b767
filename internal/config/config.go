package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// service config; every field can come from the environment or CONFIG_FILE
type Config struct {
	Port           string        `yaml:"port"`
	RedisAddr      string        `yaml:"redis_addr"`
	StoreDriver    string        `yaml:"store_driver"`
	PostgresDSN    string        `yaml:"postgres_dsn"`
	SQLitePath     string        `yaml:"sqlite_path"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TypingTimeout  time.Duration `yaml:"typing_timeout"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StatsSchedule  string        `yaml:"stats_schedule"`
	UpdatesChannel string        `yaml:"updates_channel"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		RedisAddr:      "redis:6379",
		StoreDriver:    DriverRedis,
		SQLitePath:     "collab.db",
		TypingTimeout:  2 * time.Second,
		PersistTimeout: 5 * time.Second,
		AllowedOrigins: []string{"*"},
		StatsSchedule:  "@every 1m",
		UpdatesChannel: "list_updates",
	}
}

// LoadConfig starts from defaults, applies CONFIG_FILE if set, then the environment.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.StoreDriver = strings.ToLower(getEnvOrDefault("STORE_DRIVER", cfg.StoreDriver))
	cfg.PostgresDSN = getEnvOrDefault("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.StatsSchedule = getEnvOrDefault("STATS_SCHEDULE", cfg.StatsSchedule)
	cfg.UpdatesChannel = getEnvOrDefault("UPDATES_CHANNEL", cfg.UpdatesChannel)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	var err error
	if cfg.TypingTimeout, err = getDurationOrDefault("TYPING_TIMEOUT", cfg.TypingTimeout); err != nil {
		return err
	}
	if cfg.PersistTimeout, err = getDurationOrDefault("PERSIST_TIMEOUT", cfg.PersistTimeout); err != nil {
		return err
	}
	return nil
}

func validateConfig(cfg *Config) error {
	switch cfg.StoreDriver {
	case DriverRedis:
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return errors.New("unsupported store driver: " + cfg.StoreDriver + ". Currently supported: redis, postgres, sqlite")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.TypingTimeout <= 0 || cfg.PersistTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// StoreDSN returns the connection string for the SQL drivers.
func (c *Config) StoreDSN() string {
	if c.StoreDriver == DriverSQLite {
		return c.SQLitePath
	}
	return c.PostgresDSN
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
