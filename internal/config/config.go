package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Zotero contains credentials and endpoint for the remote library service.
type Zotero struct {
	BaseURL string `toml:"base_url"`
	UserID  string `toml:"user_id"`
	APIKey  string `toml:"api_key"`
}

// GoogleBooks contains configuration for ISBN lookups.
type GoogleBooks struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// Dispatch tunes the asynchronous request queue and its HTTP transport.
type Dispatch struct {
	Workers                int     `toml:"workers"`
	RequestTimeoutSeconds  int     `toml:"request_timeout_seconds"`
	RatePerSecond          float64 `toml:"rate_per_second"`
	Burst                  int     `toml:"burst"`
	BreakerFailures        int     `toml:"breaker_failures"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
	UserAgent              string  `toml:"user_agent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shelfscan.
//
// Configuration sections by subsystem:
//   - Paths: record store and log directories
//   - Zotero: remote library credentials and base URL
//   - GoogleBooks: ISBN lookup service
//   - Dispatch: worker count, timeouts, rate limits, circuit breaker
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Zotero      Zotero      `toml:"zotero"`
	GoogleBooks GoogleBooks `toml:"google_books"`
	Dispatch    Dispatch    `toml:"dispatch"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shelfscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the location of the SQLite record store.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, "shelfscan.db")
}

// LockPath returns the location of the single-writer lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "shelfscan.lock")
}

// RequestTimeout returns the per-request network deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Dispatch.RequestTimeoutSeconds) * time.Second
}

// BreakerCooldown returns how long an open circuit stays open.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Dispatch.BreakerCooldownSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
