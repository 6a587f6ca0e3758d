package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/progress"
	"github.com/freshstart/freshstart/internal/store/daemon"
	"github.com/freshstart/freshstart/internal/store/dashboard"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
	"github.com/freshstart/freshstart/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon in the foreground",
	Long: `Run the sync daemon in the foreground.

The daemon watches the cache directory and turns lifecycle events into
sync triggers:
  - a change to a dataset file flushes after it settles (page change)
  - a change to the mode key flushes at once (mode change)
  - SIGUSR1 flushes (session hidden)
  - SIGINT or SIGTERM flushes once more and exits (unload)
  - sync.interval > 0 adds a periodic flush

With --dashboard a WebSocket server streams flush events and progress
statistics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if _, err := a.manager.Restore(ctx); err != nil {
			return fmt.Errorf("failed to restore cache: %w", err)
		}

		if withDashboard {
			stats := func() (*progress.Stats, error) {
				sess, err := a.session()
				if err != nil {
					return nil, err
				}
				return a.engine.Stats(sess)
			}
			server := dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Stats:  stats,
				Status: a.manager.Status,
				Logger: logs.Logger("dashboard"),
			})
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()

			handler := dashboard.NewHandler(server, stats, logs.Logger("dashboard"))
			a.manager.OnEvent(handler.OnEvent)
			fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n", port, port)
		}

		d, err := daemon.New(a.manager, a.cache, &daemon.Config{
			DebounceInterval: cfg.Sync.Debounce,
			FlushInterval:    cfg.Sync.Interval,
			ShutdownGrace:    exitGrace,
			Logger:           logs.Logger("daemon"),
		})
		if err != nil {
			return err
		}

		a.manager.OnEvent(func(ev storesync.Event) {
			if ev.Kind == storesync.EventFlushFinished && ev.Result != nil && verbose {
				printFlush(ev.Result)
			}
		})

		fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Cache: %s\n", a.cache.Path())
		fmt.Printf("   Store: %s\n", a.durable.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		return d.Start(runCtx)
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 8080, "dashboard port (default: dashboard.port)")
	rootCmd.AddCommand(daemonCmd)
}
