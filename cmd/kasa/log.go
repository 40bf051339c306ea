package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/spf13/cobra"
)

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect or clear the settlement log",
		Args:  cobra.NoArgs,
		RunE:  runLogList,
	}

	cmd.Flags().String("run", "", "only show records of this run ID")
	cmd.Flags().Bool("pending", false, "only show open flags")
	cmd.Flags().Int("limit", 200, "maximum number of records to show (0 for all)")

	cmd.AddCommand(logClearCmd())
	cmd.AddCommand(logArchivesCmd())

	return cmd
}

func runLogList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	runID, _ := cmd.Flags().GetString("run")
	pendingOnly, _ := cmd.Flags().GetBool("pending")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	records, err := store.ListRecords(ctx, service.RecordFilter{RunID: runID, Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if pendingOnly {
		records = pendingRecords(records)
	}

	fmt.Println(cli.RenderRecords(records))

	pending, err := store.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending records: %w", err)
	}
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d records shown, %d still open", len(records), pending)))
	return nil
}

func logClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Archive and empty the settlement log",
		Long: `Empty the settlement log before reconciling a new statement. The database
is archived first unless --no-archive is given.`,
		Args: cobra.NoArgs,
		RunE: runLogClear,
	}

	cmd.Flags().Bool("no-archive", false, "skip the archive copy")
	cmd.Flags().String("id", "", "archive ID (default: log-<timestamp>)")
	cmd.Flags().BoolP("force", "f", false, "clear even when records are still open")

	return cmd
}

func runLogClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	noArchive, _ := cmd.Flags().GetBool("no-archive")
	id, _ := cmd.Flags().GetString("id")
	force, _ := cmd.Flags().GetBool("force")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	pending, err := store.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending records: %w", err)
	}
	if pending > 0 && !force {
		return fmt.Errorf("%d records are still open; resolve them or pass --force", pending)
	}

	if !noArchive {
		info, err := store.Archive(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to archive settlement log: %w", err)
		}
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Archived %d records to %s", info.Records, info.Path)))
	}

	if err := store.ClearRecords(ctx); err != nil {
		return fmt.Errorf("failed to clear settlement log: %w", err)
	}
	if err := store.ClearStatus(ctx); err != nil {
		slog.Warn("Failed to clear processing status", "error", err)
	}
	fmt.Println(cli.FormatSuccess("Settlement log cleared"))
	return nil
}

func logArchivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List settlement log archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			archives, err := store.ListArchives(ctx)
			if err != nil {
				return err
			}
			if len(archives) == 0 {
				fmt.Println(cli.FormatInfo("No archives yet"))
				return nil
			}
			for _, a := range archives {
				fmt.Printf("%-28s %5d records  %s  %s\n", a.ID, a.Records, a.CreatedAt.Local().Format(time.DateTime), a.Path)
			}
			return nil
		},
	}
}

// pendingRecords keeps the open records. Resolving one rewrites its
// disposition to PAID, so every open record left is still pending.
func pendingRecords(records []model.SettlementRecord) []model.SettlementRecord {
	out := make([]model.SettlementRecord, 0, len(records))
	for _, rec := range records {
		if rec.Disposition.IsOpen() {
			out = append(out, rec)
		}
	}
	return out
}
