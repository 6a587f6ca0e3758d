// Command freshstart manages a language study profile: progress, the
// study event log and the sync between the fast cache and the durable
// store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/config"
	"github.com/freshstart/freshstart/internal/logging"
	"github.com/freshstart/freshstart/internal/ui"
)

var (
	v          = config.NewViper()
	configFile string
	verbose    bool

	cfg  *config.Config
	logs *logging.Output
)

var rootCmd = &cobra.Command{
	Use:   "freshstart",
	Short: "Study progress with a local cache and durable store",
	Long: `freshstart tracks spaced-repetition study progress.

Working data lives in a fast cache (one file per dataset under
<home>/cache) and is flushed to a durable SQLite store on lifecycle
triggers. Every command restores missing cache entries on start and
flushes on exit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return err
		}
		logs, err = logging.Open(logging.Options{
			Path:       cfg.LogPath(),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
			Verbose:    verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "study", Title: "Study:"},
		&cobra.Group{ID: "sync", Title: "Sync and backup:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default <home>/config.toml)")
	flags.String("home", config.DefaultHome(), "data directory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")
	_ = v.BindPFlag("home", flags.Lookup("home"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
