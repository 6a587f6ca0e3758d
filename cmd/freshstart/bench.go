package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/store/loadtest"
	"github.com/freshstart/freshstart/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Load test the cache and durable store with concurrent sessions",
	Long: `Run concurrent simulated study sessions against a throwaway cache and
database, firing a page-change trigger after every operation.

Reports operation and flush latency, how many triggers the cooldown let
through, and whether the durable store matched the cache after a final
flush. Your own data is not touched.

Examples:
  freshstart bench
  freshstart bench --sessions 50 --ops 100 --cooldown 10ms
  freshstart bench --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc := loadtest.DefaultConfig()
		lc.Sessions, _ = cmd.Flags().GetInt("sessions")
		lc.OpsPerSession, _ = cmd.Flags().GetInt("ops")
		lc.Items, _ = cmd.Flags().GetInt("items")
		lc.Cooldown, _ = cmd.Flags().GetDuration("cooldown")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if lc.Sessions <= 0 || lc.OpsPerSession <= 0 || lc.Items <= 0 {
			return fmt.Errorf("--sessions, --ops and --items must be positive")
		}
		if verbose {
			lc.Logger = logs.Logger("loadtest")
		}

		env, err := loadtest.SetupTemp(cmd.Context(), lc)
		if err != nil {
			return err
		}
		defer env.Close()

		if !jsonOutput {
			fmt.Printf("Running %d sessions x %d ops over %d items (cooldown %v)...\n\n",
				lc.Sessions, lc.OpsPerSession, lc.Items, lc.Cooldown)
		}
		report, err := env.Run(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(report)
		}
		if !report.Consistent {
			return fmt.Errorf("durable store diverged from the cache")
		}
		return nil
	},
}

func printReport(r *loadtest.Report) {
	r.Ops.Print(os.Stdout, "Operations")
	fmt.Println()
	r.Flushes.Print(os.Stdout, "Flushes")
	fmt.Println()
	fmt.Println(ui.RenderField("Elapsed:", r.Elapsed.Round(time.Millisecond).String()))
	fmt.Println(ui.RenderField("Throughput:", fmt.Sprintf("%.0f ops/s", r.Throughput())))
	fmt.Println(ui.RenderField("Triggers flushed:", fmt.Sprintf("%d of %d", r.Accepted, r.Triggers)))
	if r.Consistent {
		fmt.Printf("\n%s Durable store matches cache\n", ui.RenderPass("✓"))
	} else {
		fmt.Printf("\n%s Durable store differs from cache\n", ui.RenderFail("✗"))
	}
}

func init() {
	d := loadtest.DefaultConfig()
	benchCmd.Flags().Int("sessions", d.Sessions, "Number of concurrent sessions")
	benchCmd.Flags().Int("ops", d.OpsPerSession, "Operations per session")
	benchCmd.Flags().Int("items", d.Items, "Progress rows to seed")
	benchCmd.Flags().Duration("cooldown", d.Cooldown, "Sync cooldown")
	benchCmd.Flags().Bool("json", false, "Output the report as JSON")
	rootCmd.AddCommand(benchCmd)
}
