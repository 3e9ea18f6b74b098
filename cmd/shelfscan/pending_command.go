package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shelfscan/internal/services"
)

type pendingItem struct {
	ID      int64  `json:"id"`
	ISBN    string `json:"isbn"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Created string `json:"created"`
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List stored items that have not been uploaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				items, err := a.store.PendingItems(runCtx, a.key.ID)
				if err != nil {
					return err
				}
				views := make([]pendingItem, 0, len(items))
				for _, item := range items {
					views = append(views, pendingItem{
						ID:      item.ID,
						ISBN:    item.ISBN,
						Title:   recordTitle(item.Payload),
						Status:  string(item.Status),
						Error:   item.ErrorMessage,
						Created: item.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				if jsonOutput {
					return writeJSONList(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No pending items")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{strconv.FormatInt(v.ID, 10), v.ISBN, v.Title, v.Status, v.Error, v.Created})
				}
				fmt.Fprintln(out, renderTable(
					out,
					[]string{"ID", "ISBN", "Title", "Status", "Error", "Added"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <item-id>...",
		Short: "Delete stored items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				removed, err := a.session.Discard(runCtx, ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d item(s)\n", removed)
				return nil
			})
		},
	}
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: invalid item id %q", services.ErrValidation, arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
