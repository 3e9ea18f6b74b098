package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeZotero()
	c.normalizeGoogleBooks()
	c.normalizeDispatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeZotero() {
	c.Zotero.APIKey = strings.TrimSpace(c.Zotero.APIKey)
	if c.Zotero.APIKey == "" {
		if value, ok := os.LookupEnv("ZOTERO_API_KEY"); ok {
			c.Zotero.APIKey = strings.TrimSpace(value)
		}
	}
	c.Zotero.UserID = strings.TrimSpace(c.Zotero.UserID)
	if c.Zotero.UserID == "" {
		if value, ok := os.LookupEnv("ZOTERO_USER_ID"); ok {
			c.Zotero.UserID = strings.TrimSpace(value)
		}
	}
	c.Zotero.BaseURL = strings.TrimRight(strings.TrimSpace(c.Zotero.BaseURL), "/")
	if c.Zotero.BaseURL == "" {
		c.Zotero.BaseURL = defaultZoteroBaseURL
	}
}

func (c *Config) normalizeGoogleBooks() {
	c.GoogleBooks.APIKey = strings.TrimSpace(c.GoogleBooks.APIKey)
	if c.GoogleBooks.APIKey == "" {
		if value, ok := os.LookupEnv("GOOGLE_BOOKS_API_KEY"); ok {
			c.GoogleBooks.APIKey = strings.TrimSpace(value)
		}
	}
	c.GoogleBooks.BaseURL = strings.TrimRight(strings.TrimSpace(c.GoogleBooks.BaseURL), "/")
	if c.GoogleBooks.BaseURL == "" {
		c.GoogleBooks.BaseURL = defaultGoogleBooksBaseURL
	}
}

func (c *Config) normalizeDispatch() {
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = defaultWorkers
	}
	if c.Dispatch.RequestTimeoutSeconds <= 0 {
		c.Dispatch.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Dispatch.Burst <= 0 {
		c.Dispatch.Burst = defaultBurst
	}
	if c.Dispatch.BreakerCooldownSeconds <= 0 {
		c.Dispatch.BreakerCooldownSeconds = defaultBreakerCooldownSeconds
	}
	c.Dispatch.UserAgent = strings.TrimSpace(c.Dispatch.UserAgent)
	if c.Dispatch.UserAgent == "" {
		c.Dispatch.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
