package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/freshstart/freshstart/internal/progress"
	storesync "github.com/freshstart/freshstart/internal/store/sync"
	"github.com/freshstart/freshstart/internal/ui"
)

// statusReport is the output of the status command.
type statusReport struct {
	Profile  progress.Profile          `json:"profile" yaml:"profile"`
	Stats    *progress.Stats           `json:"stats" yaml:"stats"`
	Datasets []storesync.DatasetStatus `json:"datasets" yaml:"datasets"`
	NewUser  bool                      `json:"new_user" yaml:"new_user"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "study",
	Short:   "Show progress statistics and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := buildStatus(ctx, a)
			if err != nil {
				return err
			}
			return writeStatus(os.Stdout, report, format)
		})
	},
}

func buildStatus(ctx context.Context, a *app) (*statusReport, error) {
	sess, err := a.session()
	if err != nil {
		return nil, err
	}
	p, err := a.engine.Profile()
	if err != nil {
		return nil, err
	}
	st, err := a.engine.Stats(sess)
	if err != nil {
		return nil, err
	}
	datasets, err := a.manager.Status(ctx)
	if err != nil {
		return nil, err
	}
	isNew, err := a.manager.IsNewUser(ctx)
	if err != nil {
		return nil, err
	}
	return &statusReport{Profile: p, Stats: st, Datasets: datasets, NewUser: isNew}, nil
}

func writeStatus(w io.Writer, r *statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	if r.NewUser {
		fmt.Fprintf(w, "%s No study data yet. Run 'freshstart fresh-start'.\n", ui.RenderWarn("⚠"))
		return nil
	}

	st := r.Stats
	fmt.Fprintf(w, "\n%s %s\n\n", ui.RenderAccent("📊"), orDash(r.Profile.Nickname))
	if st.SprintDay > 0 {
		fmt.Fprintln(w, ui.RenderField("Sprint day:", strconv.Itoa(st.SprintDay)))
		fmt.Fprintln(w, ui.RenderField("Due today:", strconv.Itoa(st.DueToday)))
		fmt.Fprintln(w, ui.RenderField("Learn cap:", strconv.Itoa(st.DailyCap)))
	} else {
		fmt.Fprintln(w, ui.RenderField("Sprint day:", ui.RenderMuted("no start date")))
	}
	fmt.Fprintln(w, ui.RenderField("New:", strconv.Itoa(st.New)))
	fmt.Fprintln(w, ui.RenderField("Familiar:", strconv.Itoa(st.Familiar)))
	fmt.Fprintln(w, ui.RenderField("Known:", strconv.Itoa(st.Known)))
	fmt.Fprintln(w, ui.RenderField("Remaining:", strconv.Itoa(st.Remaining)))
	fmt.Fprintln(w, ui.RenderField("Learns left:", strconv.Itoa(st.LearnsRemaining)))
	fmt.Fprintln(w, ui.RenderField("Improves:", strconv.Itoa(st.Improves)))
	fmt.Fprintln(w, ui.RenderField("Study time:", orDash(st.StudyTime)))
	retention := "-"
	if st.Retention != nil {
		retention = strconv.Itoa(*st.Retention) + "%"
	}
	fmt.Fprintln(w, ui.RenderField("Retention:", retention))

	fmt.Fprintf(w, "\n%s\n", ui.RenderAccent("Datasets"))
	for _, d := range r.Datasets {
		mark := ui.RenderPass("✓")
		note := "in sync"
		switch {
		case d.Err != "":
			mark, note = ui.RenderFail("✗"), d.Err
		case !d.InCache && !d.InDurable:
			mark, note = ui.RenderMuted("·"), "empty"
		case !d.InDurable:
			mark, note = ui.RenderWarn("⚠"), "not yet flushed"
		case !d.InSync:
			mark, note = ui.RenderWarn("⚠"), "cache ahead of durable store"
		}
		fmt.Fprintf(w, "  %s %-12s %s\n", mark, d.Dataset, note)
	}
	fmt.Fprintln(w)
	return nil
}

func init() {
	statusCmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(statusCmd)
}
