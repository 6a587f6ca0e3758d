package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/curriculum"
	"github.com/freshstart/freshstart/internal/progress"
	"github.com/freshstart/freshstart/internal/store"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
	"github.com/freshstart/freshstart/internal/store/tabular"
	"github.com/freshstart/freshstart/internal/ui"
)

var studyCmd = &cobra.Command{
	Use:     "study",
	GroupID: "study",
	Short:   "Select, promote and record study items",
}

var studyDueCmd = &cobra.Command{
	Use:   "due",
	Short: "List items due for review today",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			sess, err := a.engine.NewSession(tabular.ActionReview)
			if err != nil {
				return err
			}
			items, err := a.engine.ReviewDue(sess)
			if err != nil {
				return err
			}
			return printBatch(a, sess, items, "due for review")
		})
	},
}

var studyLearnCmd = &cobra.Command{
	Use:   "learn",
	Short: "List the next items to learn",
	Long: `List the next unlearned items, in id order, within today's learn cap:
min(tier cap, sprint day x progress.per_day_rate).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			sess, err := a.engine.NewSession(tabular.ActionLearn)
			if err != nil {
				return err
			}
			items, err := a.engine.Learnable(sess)
			if err != nil {
				return err
			}
			return printBatch(a, sess, items, "to learn")
		})
	},
}

var studyImproveCmd = &cobra.Command{
	Use:   "improve",
	Short: "List queued items for extra review",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			sess, err := a.engine.NewSession(tabular.ActionImprove)
			if err != nil {
				return err
			}
			items, err := a.engine.ImproveBatch(sess)
			if err != nil {
				return err
			}
			return printBatch(a, sess, items, "queued for improvement")
		})
	},
}

var studyPromoteCmd = &cobra.Command{
	Use:   "promote <item-id>...",
	Short: "Record a successful response and reschedule items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			for _, id := range ids {
				p, err := a.engine.Promote(sess, id)
				switch {
				case errors.Is(err, store.ErrNotFound):
					fmt.Printf("%s item %d not found, skipped\n", ui.RenderWarn("⚠"), id)
				case err != nil:
					return err
				default:
					fmt.Printf("%s item %d -> level %d, next review day %d\n", ui.RenderPass("✓"), id, p.Level, p.NextReviewDay)
				}
			}
			return nil
		})
	},
}

var studyRecordCmd = &cobra.Command{
	Use:   "record <item-id>",
	Short: "Append a study response to the event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}
		actionFlag, _ := cmd.Flags().GetString("action")
		result, _ := cmd.Flags().GetString("result")
		duration, _ := cmd.Flags().GetInt("duration")
		ap, _ := cmd.Flags().GetString("ap")

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			action := tabular.Action(actionFlag)
			if action == "" {
				mode, ok, err := a.engine.Mode()
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("no --action given and no study mode recorded")
				}
				action = mode
			} else if action, err = tabular.ParseAction(actionFlag); err != nil {
				return err
			}

			ev := tabular.Event{
				ItemID:        id,
				Action:        action,
				Result:        result,
				Duration:      duration,
				ActivePassive: ap,
			}
			if err := a.engine.RecordEvent(sess, ev); err != nil {
				return err
			}
			fmt.Printf("%s recorded %s for item %d\n", ui.RenderPass("✓"), action, id)
			return nil
		})
	},
}

var studyModeCmd = &cobra.Command{
	Use:   "mode [mode]",
	Short: "Show or change the study mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			if len(args) == 0 {
				mode, ok, err := a.engine.Mode()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(ui.RenderMuted("no mode recorded"))
					return nil
				}
				fmt.Println(mode)
				return nil
			}
			mode, err := tabular.ParseAction(args[0])
			if err != nil {
				return err
			}
			sess, err := a.session()
			if err != nil {
				return err
			}
			if err := a.engine.SetMode(sess, mode); err != nil {
				return err
			}
			// A mode change flushes immediately, like the daemon does.
			a.manager.Notify(storesync.TriggerModeChange)
			fmt.Printf("%s mode set to %s\n", ui.RenderPass("✓"), mode)
			return nil
		})
	},
}

func printBatch(a *app, sess *progress.Session, items []tabular.Progress, what string) error {
	content, err := curriculum.Load(a.cache)
	if err != nil {
		return err
	}
	lookup := curriculum.Lookup(content)

	fmt.Printf("%s Sprint day %d: %d items %s\n\n", ui.RenderAccent("📚"), sess.SprintDay, len(items), what)
	for _, p := range items {
		line := fmt.Sprintf("  %5d  L%-2d", p.ID, p.Level)
		if it, ok := lookup[p.ID]; ok {
			line += "  " + it.Question
			if it.Answer != "" {
				line += ui.RenderMuted("  → " + it.Answer)
			}
		}
		fmt.Println(line)
	}
	return nil
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, len(args))
	for i, s := range args {
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid item id %q", s)
		}
		ids[i] = id
	}
	return ids, nil
}

func init() {
	studyRecordCmd.Flags().String("action", "", "study action (default: the recorded mode)")
	studyRecordCmd.Flags().String("result", "", "response result: 0, 0.5 or 1")
	studyRecordCmd.Flags().Int("duration", 0, "seconds spent on the item")
	studyRecordCmd.Flags().String("ap", "", "active or passive recall marker")

	studyCmd.AddCommand(studyDueCmd, studyLearnCmd, studyImproveCmd, studyPromoteCmd, studyRecordCmd, studyModeCmd)
	rootCmd.AddCommand(studyCmd)
}
