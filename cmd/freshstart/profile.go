package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/ui"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	GroupID: "setup",
	Short:   "Show the study profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			p, err := a.engine.Profile()
			if err != nil {
				return err
			}
			if p.Nickname == "" {
				fmt.Printf("%s No profile. Run 'freshstart fresh-start' to create one.\n", ui.RenderWarn("⚠"))
				return nil
			}
			fmt.Println(ui.RenderField("Nickname:", p.Nickname))
			if p.Email != "" {
				fmt.Println(ui.RenderField("Email:", p.Email))
			}
			fmt.Println(ui.RenderField("Start date:", orDash(p.StartDate)))
			fmt.Println(ui.RenderField("Licence:", orDash(p.Licence)))
			fmt.Println(ui.RenderField("Prefix:", orDash(p.Prefix)))
			return nil
		})
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update profile fields",
	Long: `Update profile fields without touching study data. Only flags that are
given change; the settings dataset is persisted immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := profileFromFlags(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			p, err := a.engine.Profile()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("nickname") {
				p.Nickname = changes.Nickname
			}
			if cmd.Flags().Changed("email") {
				p.Email = changes.Email
			}
			if cmd.Flags().Changed("start-date") {
				p.StartDate = changes.StartDate
			}
			if cmd.Flags().Changed("licence") {
				p.Licence = changes.Licence
			}

			saved, err := a.engine.SaveProfile(p)
			if err != nil {
				return err
			}
			if _, err := a.manager.Persist(ctx, store.Settings); err != nil {
				return err
			}
			fmt.Printf("%s Profile saved for %s\n", ui.RenderPass("✓"), saved.Nickname)
			return nil
		})
	},
}

func orDash(s string) string {
	if s == "" {
		return ui.RenderMuted("-")
	}
	return s
}

func init() {
	addProfileFlags(profileSetCmd)
	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
