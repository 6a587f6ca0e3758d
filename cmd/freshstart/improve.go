package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/ui"
)

var improveCmd = &cobra.Command{
	Use:     "improve",
	GroupID: "study",
	Short:   "Manage the improvement queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			ids, err := a.engine.Improves()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println(ui.RenderMuted("improvement queue is empty"))
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var improveAddCmd = &cobra.Command{
	Use:   "add <item-id>...",
	Short: "Queue items for extra review",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			for _, id := range ids {
				added, err := a.engine.AddImprove(id)
				if err != nil {
					return err
				}
				if added {
					fmt.Printf("%s queued %d\n", ui.RenderPass("✓"), id)
				} else {
					fmt.Printf("%s %d already queued\n", ui.RenderMuted("·"), id)
				}
			}
			return nil
		})
	},
}

var improveRemoveCmd = &cobra.Command{
	Use:   "remove <item-id>...",
	Short: "Remove items from the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			for _, id := range ids {
				removed, err := a.engine.RemoveImprove(id)
				if err != nil {
					return err
				}
				if removed {
					fmt.Printf("%s removed %d\n", ui.RenderPass("✓"), id)
				} else {
					fmt.Printf("%s %d was not queued\n", ui.RenderMuted("·"), id)
				}
			}
			return nil
		})
	},
}

func init() {
	improveCmd.AddCommand(improveAddCmd, improveRemoveCmd)
	rootCmd.AddCommand(improveCmd)
}
