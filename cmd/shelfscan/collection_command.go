package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shelfscan/internal/services"
	"shelfscan/internal/session"
)

func newCollectionCommand(ctx *commandContext) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "collection <name>",
		Short: "Create a collection in the personal library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("%w: collection name is empty", services.ErrValidation)
			}
			return ctx.withApp(cmd, func(runCtx context.Context, a *app) error {
				if err := a.session.NewCollection(name, strings.TrimSpace(parent)); err != nil {
					return err
				}
				var key string
				err := a.await(runCtx, func(ev session.Event) error {
					if ev.Kind != session.EventCollection {
						return nil
					}
					if ev.Err != nil {
						return fmt.Errorf("create collection: %s: %w", services.Classify(ev.Err), ev.Err)
					}
					key = ev.Collection
					return errStop
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created collection %q (key %s)\n", name, key)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "Key of the parent collection")
	return cmd
}
