package preflight

import (
	"context"
	"strings"

	"shelfscan/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Remote library checks are skipped until credentials are configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckStoreLock(cfg.LockPath()),
	}
	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.DataDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	if strings.TrimSpace(cfg.Zotero.UserID) != "" || strings.TrimSpace(cfg.Zotero.APIKey) != "" {
		results = append(results, CheckZotero(ctx, cfg.Zotero.BaseURL, cfg.Zotero.UserID, cfg.Zotero.APIKey))
	}
	results = append(results, CheckGoogleBooks(ctx, cfg.GoogleBooks.BaseURL, cfg.GoogleBooks.APIKey))

	return results
}
