package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds every runtime tunable. Values come from defaults, then the
// config file, then SCOUT_* environment variables, later sources winning.
type Config struct {
	// Headless controls the search browser. Verification challenges always
	// open a visible window regardless.
	Headless bool `json:"headless"`

	// BrowserPath overrides browser auto-detection when non-empty.
	BrowserPath string `json:"browser_path,omitempty"`

	// DefaultLanguage is the search interface language when a request does
	// not specify one.
	DefaultLanguage string `json:"default_language"`

	// NavigationTimeoutSec bounds one page navigation, in seconds.
	NavigationTimeoutSec int `json:"navigation_timeout_sec"`

	// MaxSessions caps concurrent browser sessions.
	MaxSessions int `json:"max_sessions"`

	// SessionIdleTimeoutSec retires sessions idle for this long, in seconds.
	SessionIdleTimeoutSec int `json:"session_idle_timeout_sec"`

	// MaxSearchesPerSession retires a session after this many searches.
	// Zero disables the cap.
	MaxSearchesPerSession int `json:"max_searches_per_session"`

	// RequestTimeoutSec bounds one tool call end to end, in seconds.
	RequestTimeoutSec int `json:"request_timeout_sec"`

	// CooldownSec is how long search requests are refused after a
	// verification timeout, in seconds.
	CooldownSec int `json:"cooldown_sec"`

	// ProfileBaseDir is where per-session browser profiles live. Empty
	// means a directory under the system temp dir.
	ProfileBaseDir string `json:"profile_base_dir,omitempty"`

	// LogDir is where log files go. Empty means ~/.scout/logs.
	LogDir string `json:"log_dir,omitempty"`

	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string `json:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Headless:              true,
		DefaultLanguage:       "zh-CN",
		NavigationTimeoutSec:  30,
		MaxSessions:           3,
		SessionIdleTimeoutSec: 600,
		MaxSearchesPerSession: 50,
		RequestTimeoutSec:     180,
		CooldownSec:           300,
		LogLevel:              "info",
	}
}

// DefaultPath returns the standard config file location, ~/.scout/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".scout", "config.json"), nil
}

// Load reads the config file at path (Default values when it does not
// exist), then applies SCOUT_* environment overrides. An empty path uses
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	store, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	if err := store.Read(cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the system cannot run with.
func (c *Config) Validate() error {
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.NavigationTimeoutSec < 1 {
		return fmt.Errorf("navigation_timeout_sec must be positive, got %d", c.NavigationTimeoutSec)
	}
	if c.RequestTimeoutSec < 1 {
		return fmt.Errorf("request_timeout_sec must be positive, got %d", c.RequestTimeoutSec)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// NavigationTimeout returns NavigationTimeoutSec as a duration.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutSec) * time.Second
}

// SessionIdleTimeout returns SessionIdleTimeoutSec as a duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSec) * time.Second
}

// RequestTimeout returns RequestTimeoutSec as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Cooldown returns CooldownSec as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// applyEnv overlays SCOUT_* environment variables. Unparseable values are
// ignored; the environment is a convenience layer, not the source of truth.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SCOUT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Headless = b
		}
	}
	if v := getenv("SCOUT_BROWSER_PATH"); v != "" {
		c.BrowserPath = v
	}
	if v := getenv("SCOUT_LANGUAGE"); v != "" {
		c.DefaultLanguage = v
	}
	if v := getenv("SCOUT_PROFILE_DIR"); v != "" {
		c.ProfileBaseDir = v
	}
	if v := getenv("SCOUT_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := getenv("SCOUT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	envInt(getenv, "SCOUT_NAVIGATION_TIMEOUT_SEC", &c.NavigationTimeoutSec)
	envInt(getenv, "SCOUT_MAX_SESSIONS", &c.MaxSessions)
	envInt(getenv, "SCOUT_SESSION_IDLE_TIMEOUT_SEC", &c.SessionIdleTimeoutSec)
	envInt(getenv, "SCOUT_MAX_SEARCHES_PER_SESSION", &c.MaxSearchesPerSession)
	envInt(getenv, "SCOUT_REQUEST_TIMEOUT_SEC", &c.RequestTimeoutSec)
	envInt(getenv, "SCOUT_COOLDOWN_SEC", &c.CooldownSec)
}

func envInt(getenv func(string) string, key string, dst *int) {
	v := getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
