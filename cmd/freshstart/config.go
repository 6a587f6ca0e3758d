package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/config"
	"github.com/freshstart/freshstart/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Show or initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(ui.RenderField("Home:", cfg.Home))
		fmt.Println(ui.RenderField("Cache:", cfg.CacheDir()))
		fmt.Println(ui.RenderField("Database:", cfg.DatabasePath()))
		fmt.Println(ui.RenderField("Backups:", cfg.BackupDir()))
		fmt.Println(ui.RenderField("Log:", cfg.LogPath()))
		fmt.Println(ui.RenderField("Cooldown:", cfg.Sync.Cooldown.String()))
		fmt.Println(ui.RenderField("Flush interval:", cfg.Sync.Interval.String()))
		fmt.Println(ui.RenderField("Schema version:", fmt.Sprint(cfg.Durable.Version)))
		fmt.Println(ui.RenderField("Learns per day:", fmt.Sprint(cfg.Progress.PerDayRate)))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current configuration to config.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configFile
		if path == "" {
			path = filepath.Join(cfg.Home, config.FileName)
		}
		if err := cfg.WriteFile(path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
