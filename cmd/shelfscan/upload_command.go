package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"shelfscan/internal/session"
	"shelfscan/internal/zotero"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var targetFlag string
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "upload [isbn...]",
		Short: "Upload pending items, looking up any ISBNs given first",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := zotero.ParseTarget(targetFlag)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if showMetrics {
					defer a.writeMetrics(cmd.ErrOrStderr())
				}
				if _, err := a.authorize(runCtx, false); err != nil {
					return err
				}
				if len(args) > 0 {
					results, err := a.lookup(runCtx, args)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, renderLookupTable(out, results))
				}

				submitted, err := a.session.Upload(runCtx, target)
				if err != nil {
					return err
				}
				if submitted == 0 {
					fmt.Fprintln(out, "Nothing to upload")
					return nil
				}

				var result *zotero.UploadResult
				err = a.await(runCtx, func(ev session.Event) error {
					if ev.Kind == session.EventUpload {
						result = ev.Upload
						return errStop
					}
					return nil
				})
				if err != nil {
					return err
				}
				return reportUpload(cmd, result, submitted)
			})
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "group", "g", "", "Upload to a group (id or group:<id>) instead of the personal library")
	addMetricsFlag(cmd, &showMetrics)
	return cmd
}

func reportUpload(cmd *cobra.Command, res *zotero.UploadResult, submitted int) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Uploaded %d of %d item(s) to %s\n", len(res.Uploaded), submitted, res.Target)
	if len(res.Failed) == 0 {
		return res.Err
	}

	ids := make([]int64, 0, len(res.Failed))
	for id := range res.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{strconv.FormatInt(id, 10), res.Failed[id]})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Item", "Reason"}, rows, []columnAlignment{alignRight, alignLeft}))
	if res.Err != nil {
		return fmt.Errorf("upload: %w", res.Err)
	}
	return fmt.Errorf("%d item(s) failed to upload", len(ids))
}
