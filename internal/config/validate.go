package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable. Zotero credentials are checked
// separately by RequireZotero because lookups work without them.
func (c *Config) Validate() error {
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Zotero.UserID != "" {
		if _, err := strconv.ParseInt(c.Zotero.UserID, 10, 64); err != nil {
			return fmt.Errorf("zotero.user_id must be numeric, got %q", c.Zotero.UserID)
		}
	}
	return nil
}

// RequireZotero reports a descriptive error when the Zotero account is not configured.
func (c *Config) RequireZotero() error {
	if c.Zotero.UserID != "" && c.Zotero.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("zotero.user_id and zotero.api_key are required. Set ZOTERO_USER_ID/ZOTERO_API_KEY or edit %s (create with 'shelfscan config init')", defaultPath)
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.Workers > 64 {
		return errors.New("dispatch.workers must be between 1 and 64")
	}
	if c.Dispatch.RatePerSecond < 0 {
		return errors.New("dispatch.rate_per_second must not be negative")
	}
	if c.Dispatch.BreakerFailures < 0 {
		return errors.New("dispatch.breaker_failures must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
