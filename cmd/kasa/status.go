package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/common"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current processing status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	statusStore, closeStatus, err := initStatusStore(ctx, store)
	if err != nil {
		return err
	}
	defer closeStatus()

	pending, err := store.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending records: %w", err)
	}

	status, err := statusStore.GetStatus(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
		fmt.Println(cli.RenderBox("Status", fmt.Sprintf("No run in progress\nOpen records: %d", pending)))
		return nil
	case err != nil:
		return fmt.Errorf("failed to read status: %w", err)
	}

	body := fmt.Sprintf("Stage:         %s\nName:          %s\nCategory:      %s\nAmount:        %s\nUpdated:       %s\nOpen records:  %d",
		status.Stage,
		valueOr(status.Name, "-"),
		valueOr(status.Category.Label(), "-"),
		status.Amount.StringFixed(2),
		status.UpdatedAt.Local().Format(time.DateTime),
		pending)
	fmt.Println(cli.RenderBox("Status", body))
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
