package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/progress"
	"github.com/freshstart/freshstart/internal/ui"
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	GroupID: "study",
	Short:   "Show events, reviews, learns and study time per sprint day",
	Long: `Show per-day activity from the event log.

By default the last 7 sprint days up to today are shown. Use --from and
--to to pick an explicit range of sprint days.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		from, _ := cmd.Flags().GetInt("from")
		to, _ := cmd.Flags().GetInt("to")

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			if to <= 0 {
				sess, err := a.session()
				if err != nil {
					return err
				}
				if !sess.HasSprintDay {
					return fmt.Errorf("no start date set; pass --to: %w", progress.ErrSprintDayUnavailable)
				}
				to = sess.SprintDay
			}
			if from <= 0 {
				from = max(1, to-days+1)
			}
			if from > to {
				return fmt.Errorf("--from (%d) is after --to (%d)", from, to)
			}

			activity, err := a.engine.Activity(from, to)
			if err != nil {
				return err
			}
			printActivity(activity)
			return nil
		})
	},
}

func printActivity(days []progress.DayActivity) {
	fmt.Printf("%-6s %7s %8s %7s %9s\n", "DAY", "EVENTS", "REVIEWS", "LEARNS", "TIME")
	for _, d := range days {
		spent := progress.FormatStudyTime(d.Time)
		if spent == "" {
			spent = "-"
		}
		line := fmt.Sprintf("%-6d %7d %8d %7d %9s", d.SprintDay, d.Events, d.Reviews, d.Learns, spent)
		if d.Events == 0 {
			line = ui.RenderMuted(line)
		}
		fmt.Println(line)
	}
}

func init() {
	activityCmd.Flags().Int("days", 7, "Number of sprint days to show, ending today")
	activityCmd.Flags().Int("from", 0, "First sprint day")
	activityCmd.Flags().Int("to", 0, "Last sprint day (default today)")
	rootCmd.AddCommand(activityCmd)
}
