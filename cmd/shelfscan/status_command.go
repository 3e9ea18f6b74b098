package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/preflight"
	"shelfscan/internal/services"
	"shelfscan/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, storage and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			writeSection(stdout, "Configuration", colorize, configStatusLines(ctx, cfg, colorize))

			results := preflight.RunAll(cmd.Context(), cfg)
			lines := make([]string, 0, len(results))
			failed := 0
			for _, r := range results {
				if !r.Passed {
					failed++
				}
				lines = append(lines, renderStatusLine(r.Name, checkStatus(r.Passed), r.Detail, colorize))
			}
			writeSection(stdout, "Checks", colorize, lines)

			writeSection(stdout, "Records", colorize, []string{itemsStatusLine(cmd.Context(), cfg, colorize)})

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func configStatusLines(ctx *commandContext, cfg *config.Config, colorize bool) []string {
	path := ctx.configPath
	if !ctx.configSeen {
		path += " (not found, using defaults)"
	}
	lines := []string{renderStatusLine("Config file", statusInfo, path, colorize)}

	if err := cfg.RequireZotero(); err != nil {
		lines = append(lines, renderStatusLine("Zotero account", statusWarn, "Not configured", colorize))
	} else {
		lines = append(lines, renderStatusLine("Zotero account", statusOK, "User "+cfg.Zotero.UserID, colorize))
	}
	keyed := strings.TrimSpace(cfg.GoogleBooks.APIKey) != ""
	lines = append(lines, renderStatusLine("Google Books key", statusInfo, yesNo(keyed), colorize))
	return lines
}

// itemsStatusLine counts the key's items waiting for upload. The store is
// left alone when another shelfscan process holds it.
func itemsStatusLine(ctx context.Context, cfg *config.Config, colorize bool) string {
	const label = "Pending items"
	if cfg.RequireZotero() != nil {
		return renderStatusLine(label, statusInfo, "No account configured", colorize)
	}
	st, err := store.Open(cfg)
	if errors.Is(err, store.ErrLocked) {
		return renderStatusLine(label, statusInfo, "Store in use", colorize)
	}
	if err != nil {
		return renderStatusLine(label, statusError, err.Error(), colorize)
	}
	defer st.Close()

	keyID, err := st.ResolveKeyID(ctx, cfg.Zotero.APIKey)
	if errors.Is(err, services.ErrNotFound) {
		return renderStatusLine(label, statusInfo, "0", colorize)
	}
	if err != nil {
		return renderStatusLine(label, statusError, err.Error(), colorize)
	}
	items, err := st.PendingItems(ctx, keyID)
	if err != nil {
		return renderStatusLine(label, statusError, err.Error(), colorize)
	}
	failed := 0
	for _, item := range items {
		if item.Status == store.ItemFailed {
			failed++
		}
	}
	if failed > 0 {
		return renderStatusLine(label, statusWarn, fmt.Sprintf("%d (%d failed)", len(items), failed), colorize)
	}
	return renderStatusLine(label, statusOK, fmt.Sprintf("%d", len(items)), colorize)
}
