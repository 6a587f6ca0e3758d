package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/store"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
	"github.com/freshstart/freshstart/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Flush the cache to the durable store",
	Long: `Flush UserProgress, improves and events to the durable store and report
each dataset's outcome.

The flush honours the cooldown and in-flight guard. With --all every
durable collection is written, curriculum and settings included, without
the cooldown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			var (
				result *storesync.FlushResult
				err    error
			)
			if all {
				result, err = a.manager.Persist(ctx)
				if err != nil {
					return err
				}
			} else {
				result = a.manager.Sync(ctx)
			}
			printFlush(result)
			if result.Failed() {
				return fmt.Errorf("flush failed: %w", result.Err)
			}
			return nil
		})
	},
}

func printFlush(r *storesync.FlushResult) {
	if r.Skipped {
		fmt.Printf("%s Flush skipped (cooldown or flush in progress)\n", ui.RenderWarn("⚠"))
		return
	}
	for _, d := range r.Datasets {
		switch {
		case d.Err != nil:
			fmt.Printf("  %s %-12s %v\n", ui.RenderFail("✗"), d.Dataset, d.Err)
		case d.Absent:
			fmt.Printf("  %s %-12s not in cache\n", ui.RenderMuted("·"), d.Dataset)
		default:
			fmt.Printf("  %s %-12s %d bytes\n", ui.RenderPass("✓"), d.Dataset, d.Bytes)
		}
	}
	fmt.Printf("%s Flushed %d datasets in %v\n", ui.RenderPass("✓"), r.WrittenCount(), r.Finished.Sub(r.Started).Round(time.Millisecond))
	if r.BackupPath != "" {
		fmt.Printf("%s Backup written to %s\n", ui.RenderWarn("⚠"), r.BackupPath)
	}
}

var restoreCmd = &cobra.Command{
	Use:     "restore",
	GroupID: "sync",
	Short:   "Copy durable records into empty cache entries",
	Long: `Restore every dataset the cache does not hold from the durable store.
Cache entries that exist are never overwritten. Every command restores on
start; this command reports what happened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		result, err := a.manager.Restore(cmd.Context())
		if err != nil {
			return err
		}
		report := func(label string, ds []store.Dataset) {
			if len(ds) > 0 {
				fmt.Println(ui.RenderField(label, fmt.Sprint(ds)))
			}
		}
		report("Restored:", result.Restored)
		report("Kept:", result.Kept)
		report("Missing:", result.Missing)
		report("Failed:", result.Failed)
		return nil
	},
}

var wipeCmd = &cobra.Command{
	Use:     "wipe",
	GroupID: "sync",
	Short:   "Delete all data from both backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.IsInteractive() {
				return fmt.Errorf("refusing to wipe without --yes when not on a terminal")
			}
			ok, err := confirm("Delete all study data from cache and durable store?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted")
				return nil
			}
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.manager.ClearAllData(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("%s All data deleted\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("all", false, "write every durable collection, ignoring the cooldown")
	wipeCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(syncCmd, restoreCmd, wipeCmd)
}
