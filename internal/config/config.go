package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Logging    LoggingConfig
	Thresholds ThresholdConfig
	Notify     NotifyConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimitRPS    int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Backend string // sqlite or memory
	Path    string
}

type LoggingConfig struct {
	Level string
}

type ThresholdConfig struct {
	Confirm int
	Delete  int
	Quorum  int
}

type NotifyConfig struct {
	Workers        int
	BufferSize     int
	WebhookURL     string
	WebhookTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:    getEnvInt("RATE_LIMIT_RPS", 10),
			CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"*"}),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
			Path:    getEnv("DB_PATH", "./data/spot-safety.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Thresholds: ThresholdConfig{
			Confirm: getEnvInt("CONFIRM_THRESHOLD", 3),
			Delete:  getEnvInt("DELETE_THRESHOLD", 5),
			Quorum:  getEnvInt("VOTE_QUORUM", 5),
		},
		Notify: NotifyConfig{
			Workers:        getEnvInt("NOTIFY_WORKERS", 2),
			BufferSize:     getEnvInt("NOTIFY_BUFFER_SIZE", 64),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeout: getEnvDuration("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	t := c.Thresholds
	if t.Confirm < 1 || t.Delete < 1 || t.Quorum < 1 {
		return fmt.Errorf("thresholds must be at least 1: confirm=%d delete=%d quorum=%d", t.Confirm, t.Delete, t.Quorum)
	}
	if t.Delete < t.Confirm {
		return fmt.Errorf("delete threshold %d is below confirm threshold %d", t.Delete, t.Confirm)
	}

	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify workers must be at least 1")
	}
	if c.Notify.BufferSize < 1 {
		return fmt.Errorf("notify buffer size must be at least 1")
	}
	if c.Notify.WebhookURL != "" && !strings.HasPrefix(c.Notify.WebhookURL, "http://") && !strings.HasPrefix(c.Notify.WebhookURL, "https://") {
		return fmt.Errorf("invalid webhook url: %s", c.Notify.WebhookURL)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
