package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	GuardMemory   = "memory"
	GuardRedis    = "redis"
	GuardPostgres = "postgres"
)

type Config struct {
	Addr                     string        `validate:"required"`
	Environment              string        `validate:"oneof=development test production"`
	DatabaseURL              string        `validate:"required"`
	DatabaseMaxConns         int           `validate:"min=2"`
	MigrationsDir            string
	RunMigrations            bool
	JWTSecret                string
	DataEncryptionKey        string
	LogLevel                 string        `validate:"oneof=debug info warn error"`
	LogFormat                string        `validate:"oneof=json console"`
	Timezone                 string        `validate:"required"`
	PollInterval             time.Duration `validate:"gt=0"`
	PollConcurrency          int           `validate:"min=0"`
	DeviceTimeout            time.Duration `validate:"gt=0"`
	DevicePageSize           int           `validate:"min=1,max=1000"`
	DeviceMaxRetries         int           `validate:"min=0"`
	DeviceBreakerTimeout     time.Duration `validate:"gt=0"`
	NotifyEvaluateInterval   time.Duration `validate:"gt=0"`
	MaxNotificationJobs      int           `validate:"min=1"`
	DispatchGuard            string        `validate:"oneof=memory redis postgres"`
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	MessagingEnabled         bool
	MessagingBaseURL         string
	MessagingToken           string
	EarlyLeaveReturnRestores bool
	MetricsEnabled           bool
	ConfigFile               string
}

// Policy is the subset of settings that may come from the YAML file.
type Policy struct {
	Timezone                 *string `yaml:"timezone"`
	PollInterval             *string `yaml:"poll_interval"`
	PollConcurrency          *int    `yaml:"poll_concurrency"`
	DevicePageSize           *int    `yaml:"device_page_size"`
	DeviceMaxRetries         *int    `yaml:"device_max_retries"`
	NotifyEvaluateInterval   *string `yaml:"notify_evaluate_interval"`
	MaxNotificationJobs      *int    `yaml:"max_notification_jobs"`
	DispatchGuard            *string `yaml:"dispatch_guard"`
	EarlyLeaveReturnRestores *bool   `yaml:"early_leave_return_restores"`
}

func Defaults() Config {
	return Config{
		Addr:                     ":8080",
		Environment:              "development",
		DatabaseMaxConns:         10,
		MigrationsDir:            "migrations",
		RunMigrations:            true,
		LogLevel:                 "info",
		LogFormat:                "json",
		Timezone:                 "UTC",
		PollInterval:             60 * time.Second,
		DeviceTimeout:            10 * time.Second,
		DevicePageSize:           30,
		DeviceMaxRetries:         3,
		DeviceBreakerTimeout:     30 * time.Second,
		NotifyEvaluateInterval:   5 * time.Minute,
		MaxNotificationJobs:      3,
		DispatchGuard:            GuardMemory,
		RedisAddr:                "localhost:6379",
		EarlyLeaveReturnRestores: true,
		MetricsEnabled:           true,
	}
}

// Load reads .env (if present), then the optional YAML policy file, then
// the process environment. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	cfg.ConfigFile = getEnv("CONFIG_FILE", "")
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}

	cfg.Addr = getEnv("APP_ADDR", cfg.Addr)
	cfg.Environment = getEnv("APP_ENV", cfg.Environment)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseMaxConns = getEnvInt("DATABASE_MAX_CONNS", cfg.DatabaseMaxConns)
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.RunMigrations = getEnvBool("RUN_MIGRATIONS", cfg.RunMigrations)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.DataEncryptionKey = getEnv("DATA_ENCRYPTION_KEY", cfg.DataEncryptionKey)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.PollConcurrency = getEnvInt("POLL_CONCURRENCY", cfg.PollConcurrency)
	cfg.DeviceTimeout = getEnvDuration("DEVICE_TIMEOUT", cfg.DeviceTimeout)
	cfg.DevicePageSize = getEnvInt("DEVICE_PAGE_SIZE", cfg.DevicePageSize)
	cfg.DeviceMaxRetries = getEnvInt("DEVICE_MAX_RETRIES", cfg.DeviceMaxRetries)
	cfg.DeviceBreakerTimeout = getEnvDuration("DEVICE_BREAKER_TIMEOUT", cfg.DeviceBreakerTimeout)
	cfg.NotifyEvaluateInterval = getEnvDuration("NOTIFY_EVALUATE_INTERVAL", cfg.NotifyEvaluateInterval)
	cfg.MaxNotificationJobs = getEnvInt("MAX_NOTIFICATION_JOBS", cfg.MaxNotificationJobs)
	cfg.DispatchGuard = strings.ToLower(getEnv("DISPATCH_GUARD", cfg.DispatchGuard))
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.MessagingEnabled = getEnvBool("MESSAGING_ENABLED", cfg.MessagingEnabled)
	cfg.MessagingBaseURL = getEnv("MESSAGING_BASE_URL", cfg.MessagingBaseURL)
	cfg.MessagingToken = getEnv("MESSAGING_TOKEN", cfg.MessagingToken)
	cfg.EarlyLeaveReturnRestores = getEnvBool("EARLY_LEAVE_RETURN_RESTORES", cfg.EarlyLeaveReturnRestores)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return c.ApplyPolicy(p)
}

func (c *Config) ApplyPolicy(p Policy) error {
	if p.Timezone != nil {
		c.Timezone = *p.Timezone
	}
	if p.PollInterval != nil {
		d, err := time.ParseDuration(*p.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if p.PollConcurrency != nil {
		c.PollConcurrency = *p.PollConcurrency
	}
	if p.DevicePageSize != nil {
		c.DevicePageSize = *p.DevicePageSize
	}
	if p.DeviceMaxRetries != nil {
		c.DeviceMaxRetries = *p.DeviceMaxRetries
	}
	if p.NotifyEvaluateInterval != nil {
		d, err := time.ParseDuration(*p.NotifyEvaluateInterval)
		if err != nil {
			return fmt.Errorf("notify_evaluate_interval: %w", err)
		}
		c.NotifyEvaluateInterval = d
	}
	if p.MaxNotificationJobs != nil {
		c.MaxNotificationJobs = *p.MaxNotificationJobs
	}
	if p.DispatchGuard != nil {
		c.DispatchGuard = strings.ToLower(*p.DispatchGuard)
	}
	if p.EarlyLeaveReturnRestores != nil {
		c.EarlyLeaveReturnRestores = *p.EarlyLeaveReturnRestores
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config field %s: failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE is not a valid location: %w", err)
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for device credentials at rest")
		}
	}
	if c.DispatchGuard == GuardRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR must be set when DISPATCH_GUARD is redis")
	}
	if c.MessagingEnabled && (c.MessagingBaseURL == "" || c.MessagingToken == "") {
		return fmt.Errorf("MESSAGING_BASE_URL and MESSAGING_TOKEN must be set when MESSAGING_ENABLED is true")
	}
	return nil
}
