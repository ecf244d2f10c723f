package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration required by the service.
type Config struct {
	HTTPAddr     string        `yaml:"http_addr"`
	DBURL        string        `yaml:"db_url"`
	RedisAddr    string        `yaml:"redis_addr"`
	JWTSecret    string        `yaml:"jwt_secret"`
	AuthDisabled bool          `yaml:"auth_disabled"`
	LogMode      string        `yaml:"log_mode"`
	LogRedact    bool          `yaml:"log_redact"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	SettingsTTL  time.Duration `yaml:"settings_ttl"`

	FanoutWorkers     int           `yaml:"fanout_workers"`
	FanoutQueueSize   int           `yaml:"fanout_queue_size"`
	FanoutTaskTimeout time.Duration `yaml:"fanout_task_timeout"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		LogMode:           "prod",
		MaxBodyBytes:      1 << 20,
		SettingsTTL:       30 * time.Second,
		FanoutWorkers:     4,
		FanoutQueueSize:   1024,
		FanoutTaskTimeout: 5 * time.Second,
	}
}

// Load reads CONFIG_FILE (optional YAML) and then environment variables.
// Environment values win over the file.
//
// DB_URL empty runs the service on the in-memory store.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBURL = getEnv("DB_URL", cfg.DBURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.AuthDisabled = parseBool("AUTH_DISABLED", cfg.AuthDisabled)
	cfg.LogMode = getEnv("LOG_MODE", cfg.LogMode)
	cfg.LogRedact = parseBool("LOG_REDACT", cfg.LogRedact)
	cfg.MaxBodyBytes = parseInt64("MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.SettingsTTL = parseDuration("SETTINGS_TTL", cfg.SettingsTTL)
	cfg.FanoutWorkers = parseInt("FANOUT_WORKERS", cfg.FanoutWorkers)
	cfg.FanoutQueueSize = parseInt("FANOUT_QUEUE_SIZE", cfg.FanoutQueueSize)
	cfg.FanoutTaskTimeout = parseDuration("FANOUT_TASK_TIMEOUT", cfg.FanoutTaskTimeout)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if !c.AuthDisabled && c.JWTSecret == "" {
		return errors.New("JWT_SECRET required (or AUTH_DISABLED=true for local dev)")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}
	if c.FanoutWorkers <= 0 {
		return errors.New("FANOUT_WORKERS must be > 0")
	}
	if c.FanoutQueueSize <= 0 {
		return errors.New("FANOUT_QUEUE_SIZE must be > 0")
	}
	if c.FanoutTaskTimeout <= 0 {
		return errors.New("FANOUT_TASK_TIMEOUT must be > 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func parseInt64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(getEnv(key, strconv.FormatInt(defaultValue, 10)), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return value
}
