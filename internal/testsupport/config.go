package testsupport

import (
	"path/filepath"
	"testing"

	"shelfscan/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Zotero.UserID = "12345"
	cfgVal.Zotero.APIKey = "test-key"
	cfgVal.Dispatch.RequestTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithZoteroURL points the Zotero client at a test server.
func WithZoteroURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Zotero.BaseURL = url
	}
}

// WithGoogleBooksURL points the lookup client at a test server.
func WithGoogleBooksURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.GoogleBooks.BaseURL = url
	}
}

// WithAccount overrides the Zotero credentials.
func WithAccount(userID, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Zotero.UserID = userID
		b.cfg.Zotero.APIKey = apiKey
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
