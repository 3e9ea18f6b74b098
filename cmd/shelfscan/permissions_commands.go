package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"shelfscan/internal/access"
	"shelfscan/internal/logging"
	"shelfscan/internal/services"
	"shelfscan/internal/session"
	"shelfscan/internal/zotero"
)

type permissionView struct {
	Scope       string `json:"scope"`
	Permissions string `json:"permissions"`
}

type targetView struct {
	Target string `json:"target"`
	Title  string `json:"title"`
}

func newPermissionsCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	var erase bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Show what the configured API key may do",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if erase {
					if err := a.session.ErasePermissions(runCtx); err != nil {
						return err
					}
					fmt.Fprintln(out, "Stored permissions erased")
					return nil
				}

				acc, err := a.authorize(runCtx, refresh)
				if err != nil {
					return err
				}
				views := permissionViews(*acc)
				if jsonOutput {
					return writeJSONList(cmd, views)
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.Scope, v.Permissions})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Scope", "Permissions"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch permissions again instead of using stored ones")
	cmd.Flags().BoolVar(&erase, "erase", false, "Forget the stored permissions of the key")
	cmd.MarkFlagsMutuallyExclusive("refresh", "erase")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func permissionViews(acc access.Access) []permissionView {
	entries := acc.Entries()
	views := make([]permissionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, permissionView{Scope: scopeLabel(e.Scope), Permissions: e.Perm.String()})
	}
	return views
}

func scopeLabel(scope int) string {
	switch scope {
	case access.ScopeLibrary:
		return "library"
	case access.ScopeAllGroups:
		return "all groups"
	case access.ScopeNoGroup:
		return "no group"
	default:
		return "group:" + strconv.Itoa(scope)
	}
}

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List the libraries the API key can upload to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				if _, err := a.authorize(runCtx, false); err != nil {
					return err
				}
				targets, err := a.awaitTargets(runCtx)
				if err != nil {
					return err
				}
				views := targetViews(targets)
				if jsonOutput {
					return writeJSONList(cmd, views)
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{v.Target, v.Title})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out, []string{"Target", "Title"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// awaitTargets waits for the upload targets that follow a permissions event.
// A failed group listing leaves the placeholder titles in place.
func (a *app) awaitTargets(ctx context.Context) (map[int]string, error) {
	var targets map[int]string
	err := a.await(ctx, func(ev session.Event) error {
		switch ev.Kind {
		case session.EventGroups:
			targets = ev.Targets
			if ev.Fetching {
				return nil
			}
			return errStop
		case session.EventFailure:
			if ev.RequestID != zotero.IDGroups {
				return nil
			}
			a.logger.Warn("group titles unavailable", logging.String("reason", services.Classify(ev.Err)))
			if targets != nil {
				return errStop
			}
		}
		return nil
	})
	return targets, err
}

func targetViews(targets map[int]string) []targetView {
	views := make([]targetView, 0, len(targets))
	for _, scope := range slices.Sorted(maps.Keys(targets)) {
		t := zotero.Library()
		if scope > 0 {
			t = zotero.Group(scope)
		}
		views = append(views, targetView{Target: t.String(), Title: targets[scope]})
	}
	return views
}
