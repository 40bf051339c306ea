package main

import (
	"github.com/Veraticus/kasa/internal/tui"
	"github.com/Veraticus/kasa/internal/tui/themes"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the settlement log and run status live",
		Long: `Open a terminal dashboard showing the processing status and the
settlement log, refreshed on an interval. Use it next to a running
"kasa run" or "kasa serve".`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().Duration("interval", tui.DefaultInterval, "refresh interval")
	cmd.Flags().String("run", "", "only show records of this run ID")
	cmd.Flags().String("theme", "default", "color theme (default, catppuccin-mocha)")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	interval, _ := cmd.Flags().GetDuration("interval")
	runID, _ := cmd.Flags().GetString("run")
	theme, _ := cmd.Flags().GetString("theme")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	status, closeStatus, err := initStatusStore(ctx, store)
	if err != nil {
		return err
	}
	defer closeStatus()

	return tui.Run(ctx,
		tui.WithLog(store),
		tui.WithStatus(status),
		tui.WithTheme(themes.ByName(theme)),
		tui.WithInterval(interval),
		tui.WithRunID(runID),
	)
}
