// Package config loads lecturepad runtime settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by store.Open.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all session and wiring configuration.
type Config struct {
	APIBase  string
	APIToken string
	UserID   string
	CourseID string

	LLM LLMConfig

	StoreDriver string
	StorePath   string
	RedisAddr   string

	LogMode string
	LogPath string

	FetchTimeout     time.Duration
	StreamTimeout    time.Duration
	ProgressInterval time.Duration
	ProgressDelta    float64
}

// LLMConfig points the assistant at an OpenAI-compatible endpoint.
type LLMConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Load reads an optional .env file, then environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	base := defaultDataDir()
	cfg := &Config{
		APIBase:  strings.TrimRight(getEnv("LECTUREPAD_API_BASE", "http://localhost:8080/api"), "/"),
		APIToken: getEnv("LECTUREPAD_API_TOKEN", ""),
		UserID:   getEnv("LECTUREPAD_USER_ID", ""),
		CourseID: getEnv("LECTUREPAD_COURSE_ID", ""),
		LLM: LLMConfig{
			Endpoint: getEnv("LLM_ENDPOINT", ""),
			APIKey:   getEnv("LLM_API_KEY", ""),
			Model:    getEnv("LLM_MODEL", ""),
		},
		StoreDriver:      strings.ToLower(getEnv("LECTUREPAD_STORE", StoreFile)),
		StorePath:        getEnv("LECTUREPAD_STORE_PATH", filepath.Join(base, "state.json")),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		LogMode:          getEnv("LOG_MODE", "dev"),
		LogPath:          getEnv("LOG_PATH", filepath.Join(base, "lecturepad.log")),
		FetchTimeout:     getEnvDuration("LECTUREPAD_FETCH_TIMEOUT", 30*time.Second),
		StreamTimeout:    getEnvDuration("LECTUREPAD_STREAM_TIMEOUT", 2*time.Minute),
		ProgressInterval: getEnvDuration("LECTUREPAD_PROGRESS_INTERVAL", 10*time.Second),
		ProgressDelta:    getEnvFloat("LECTUREPAD_PROGRESS_DELTA", 5),
	}
	return cfg, nil
}

// Validate checks that the fields required to start a session are set.
func (c *Config) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("LECTUREPAD_API_BASE cannot be empty")
	}
	if c.UserID == "" {
		return fmt.Errorf("LECTUREPAD_USER_ID cannot be empty")
	}
	if c.CourseID == "" {
		return fmt.Errorf("LECTUREPAD_COURSE_ID cannot be empty")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("LECTUREPAD_STORE_PATH cannot be empty for the %s store", c.StoreDriver)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty for the redis store")
		}
	default:
		return fmt.Errorf("unknown LECTUREPAD_STORE %q", c.StoreDriver)
	}
	if c.FetchTimeout <= 0 || c.StreamTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0")
	}
	if c.ProgressInterval < 0 || c.ProgressDelta < 0 {
		return fmt.Errorf("progress throttle settings must be >= 0")
	}
	return nil
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "lecturepad")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
