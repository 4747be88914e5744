package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Deezer connection
	DeezerBaseURL string
	FetchTimeout  time.Duration // per-track fetch budget

	// Playback behavior
	TrackLength   time.Duration // excerpt length per track
	SimpleBackend bool          // force the wall-clock fallback path

	// Logging
	LogLevel string // zerolog level name
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		DeezerBaseURL: envStr("LISZTNUP_DEEZER_URL", "https://api.deezer.com"),
		FetchTimeout:  time.Duration(envInt("LISZTNUP_FETCH_TIMEOUT", 10)) * time.Second,
		TrackLength:   time.Duration(envInt("LISZTNUP_TRACK_LENGTH", 20)) * time.Second,
		SimpleBackend: envBool("LISZTNUP_SIMPLE_BACKEND", false),
		LogLevel:      envStr("LISZTNUP_LOG_LEVEL", "info"),
	}
}

// Validate rejects values the player cannot run with.
func (c Config) Validate() error {
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.TrackLength < 5*time.Second || c.TrackLength > 30*time.Second {
		return fmt.Errorf("track length must be between 5s and 30s, got %s", c.TrackLength)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
