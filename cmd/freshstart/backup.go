package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/store/backup"
	"github.com/freshstart/freshstart/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Write a JSON backup of the mutable datasets",
	Long: `Write the same artifact the sync routine falls back to when the durable
store fails: UserProgress, improves and events with a timestamp and the
user prefix, named freshstart-backup-<prefix>-<date>.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			if out == "" {
				path, err := a.exporter.Export(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s Backup written to %s\n", ui.RenderPass("✓"), path)
				return nil
			}

			snap, err := a.exporter.Take()
			if err != nil {
				return err
			}
			if err := backup.WriteFile(out, snap); err != nil {
				return err
			}
			fmt.Printf("%s Backup written to %s\n", ui.RenderPass("✓"), out)
			return nil
		})
	},
}

var importBackupCmd = &cobra.Command{
	Use:     "import-backup <file>",
	GroupID: "sync",
	Short:   "Load a JSON backup into the cache",
	Long: `Load a backup artifact into the cache and persist it.

Datasets already in the cache are kept unless --force is given. Every
dataset is validated before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		snap, err := backup.ReadFile(filepath.Clean(args[0]))
		if err != nil {
			return err
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			result, err := backup.Import(a.cache, snap, backup.ImportOptions{Overwrite: force, DryRun: dryRun})
			if err != nil {
				return err
			}
			for _, d := range result.Written {
				fmt.Printf("  %s %s\n", ui.RenderPass("✓"), d)
			}
			for _, d := range result.Skipped {
				fmt.Printf("  %s %s kept (use --force to replace)\n", ui.RenderMuted("·"), d)
			}
			for _, d := range result.Missing {
				fmt.Printf("  %s %s not in backup\n", ui.RenderMuted("·"), d)
			}
			if dryRun || len(result.Written) == 0 {
				return nil
			}
			flush, err := a.manager.Persist(ctx, result.Written...)
			if err != nil {
				return err
			}
			printFlush(flush)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default: <backup.dir>/<generated name>)")
	importBackupCmd.Flags().Bool("force", false, "replace datasets already in the cache")
	importBackupCmd.Flags().Bool("dry-run", false, "validate without writing")
	rootCmd.AddCommand(exportCmd, importBackupCmd)
}
