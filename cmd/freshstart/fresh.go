package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/curriculum"
	"github.com/freshstart/freshstart/internal/progress"
	"github.com/freshstart/freshstart/internal/store/tabular"
	"github.com/freshstart/freshstart/internal/ui"
)

var freshStartCmd = &cobra.Command{
	Use:     "fresh-start",
	Aliases: []string{"init"},
	GroupID: "setup",
	Short:   "Wipe all data and start a new profile",
	Long: `Delete every dataset from both the cache and the durable store, then
seed a new profile.

The wipe is verified: if any dataset survives in either backend the
command fails and nothing is seeded. A new UserProgress is seeded with one
unlearned row per curriculum item, or progress.items rows without a
curriculum.

Without --nickname on a terminal, an interactive form asks for the
profile fields. Start dates accept ISO dates or phrases like "today".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profileFromFlags(cmd)
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		curriculumPath, _ := cmd.Flags().GetString("curriculum")
		sheet, _ := cmd.Flags().GetString("sheet")

		var items []tabular.Item
		if curriculumPath != "" {
			res, err := curriculum.Import(curriculum.ImportConfig{FilePath: curriculumPath, SheetName: sheet})
			if err != nil {
				return err
			}
			items = res.Items
			for _, e := range res.Errors {
				fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), e)
			}
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			isNew, err := a.manager.IsNewUser(ctx)
			if err != nil {
				return err
			}
			if p.Nickname == "" {
				if !ui.IsInteractive() {
					return errors.New("--nickname is required when not running on a terminal")
				}
				if p, err = askProfile(p); err != nil {
					return err
				}
			}
			if !isNew && !yes {
				if !ui.IsInteractive() {
					return errors.New("existing data found; pass --yes to wipe it")
				}
				ok, err := confirm("Delete all existing study data?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted")
					return nil
				}
			}

			saved, err := a.engine.FreshStart(ctx, a.manager, p, items)
			if err != nil {
				return err
			}
			fmt.Printf("%s Fresh start for %s\n", ui.RenderPass("✓"), saved.Nickname)
			fmt.Println(ui.RenderField("Licence:", saved.Licence))
			fmt.Println(ui.RenderField("Prefix:", saved.Prefix))
			if saved.StartDate != "" {
				fmt.Println(ui.RenderField("Start date:", saved.StartDate))
			}
			if len(items) > 0 {
				fmt.Println(ui.RenderField("Curriculum:", fmt.Sprintf("%d items", len(items))))
			}
			return nil
		})
	},
}

// profileFromFlags reads the profile flags shared by fresh-start and
// profile set.
func profileFromFlags(cmd *cobra.Command) (progress.Profile, error) {
	var p progress.Profile
	p.Nickname, _ = cmd.Flags().GetString("nickname")
	p.Email, _ = cmd.Flags().GetString("email")
	p.Licence, _ = cmd.Flags().GetString("licence")
	start, _ := cmd.Flags().GetString("start-date")
	date, err := parseDate(start, time.Now())
	if err != nil {
		return p, err
	}
	p.StartDate = date
	return p, nil
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().String("nickname", "", "profile nickname")
	cmd.Flags().String("email", "", "contact email")
	cmd.Flags().String("start-date", "", `sprint start date ("2025-10-01", "today", "last monday")`)
	cmd.Flags().String("licence", "", "licence string (generated when empty)")
}

// askProfile fills missing profile fields with an interactive form.
func askProfile(p progress.Profile) (progress.Profile, error) {
	start := p.StartDate
	if start == "" {
		start = "today"
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Nickname").
			Value(&p.Nickname).
			Validate(func(s string) error {
				return progress.Profile{Nickname: s}.Validate()
			}),
		huh.NewInput().
			Title("Email").
			Description("Optional").
			Value(&p.Email),
		huh.NewInput().
			Title("Start date").
			Description(`ISO date or a phrase like "today"`).
			Value(&start).
			Validate(func(s string) error {
				_, err := parseDate(s, time.Now())
				return err
			}),
	))
	if err := form.Run(); err != nil {
		return p, err
	}
	date, err := parseDate(start, time.Now())
	if err != nil {
		return p, err
	}
	p.StartDate = date
	return p, nil
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func init() {
	addProfileFlags(freshStartCmd)
	freshStartCmd.Flags().BoolP("yes", "y", false, "wipe existing data without asking")
	freshStartCmd.Flags().String("curriculum", "", "curriculum file to import (.tsv, .csv, .xlsx)")
	freshStartCmd.Flags().String("sheet", "", "workbook sheet (default: first sheet)")
	rootCmd.AddCommand(freshStartCmd)
}
