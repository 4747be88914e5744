package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv() {
	for _, k := range []string{
		"LISZTNUP_DEEZER_URL", "LISZTNUP_FETCH_TIMEOUT",
		"LISZTNUP_TRACK_LENGTH", "LISZTNUP_SIMPLE_BACKEND",
		"LISZTNUP_LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	if cfg.DeezerBaseURL != "https://api.deezer.com" {
		t.Errorf("DeezerBaseURL = %q, want default", cfg.DeezerBaseURL)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.TrackLength != 20*time.Second {
		t.Errorf("TrackLength = %v, want 20s", cfg.TrackLength)
	}
	if cfg.SimpleBackend {
		t.Error("SimpleBackend = true, want false by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv()
	t.Setenv("LISZTNUP_DEEZER_URL", "http://localhost:9090")
	t.Setenv("LISZTNUP_TRACK_LENGTH", "15")
	t.Setenv("LISZTNUP_SIMPLE_BACKEND", "true")
	t.Setenv("LISZTNUP_LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.DeezerBaseURL != "http://localhost:9090" {
		t.Errorf("DeezerBaseURL = %q", cfg.DeezerBaseURL)
	}
	if cfg.TrackLength != 15*time.Second {
		t.Errorf("TrackLength = %v, want 15s", cfg.TrackLength)
	}
	if !cfg.SimpleBackend {
		t.Error("SimpleBackend = false, want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv()
	t.Setenv("LISZTNUP_TRACK_LENGTH", "twenty")
	t.Setenv("LISZTNUP_SIMPLE_BACKEND", "maybe")

	cfg := Load()

	if cfg.TrackLength != 20*time.Second {
		t.Errorf("TrackLength = %v, want default 20s", cfg.TrackLength)
	}
	if cfg.SimpleBackend {
		t.Error("SimpleBackend = true, want default false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"shortest excerpt", func(c *Config) { c.TrackLength = 5 * time.Second }, false},
		{"longest excerpt", func(c *Config) { c.TrackLength = 30 * time.Second }, false},
		{"excerpt too short", func(c *Config) { c.TrackLength = 4 * time.Second }, true},
		{"excerpt too long", func(c *Config) { c.TrackLength = time.Minute }, true},
		{"zero timeout", func(c *Config) { c.FetchTimeout = 0 }, true},
	}

	clearEnv()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
