package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/config"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the settlement log as a spreadsheet report",
		Long: `Build a report of the settlement log with totals per disposition and
category, and write it to Google Sheets or, with --out, to a local xlsx file.`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().String("out", "", "write an xlsx file instead of Google Sheets")
	cmd.Flags().String("run", "", "only export records of this run ID")
	cmd.Flags().String("title", "Kasa Mutabakat Raporu", "report title")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out, _ := cmd.Flags().GetString("out")
	runID, _ := cmd.Flags().GetString("run")
	title, _ := cmd.Flags().GetString("title")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	records, err := store.ListRecords(ctx, service.RecordFilter{RunID: runID})
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	report := sheets.BuildReport(title, records, time.Now())

	if out != "" {
		path := config.ExpandPath(out)
		if err := sheets.WriteXLSX(path, report); err != nil {
			return err
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Wrote %d records to %s", len(records), path)))
		return nil
	}

	cfg, err := config.LoadSheetsConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to load sheets config: %w", err)
	}
	writer, err := sheets.NewWriter(ctx, *cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create sheets writer: %w", err)
	}
	id, err := writer.Write(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Exported %d records", len(records))))
	fmt.Println(cli.FormatInfo("https://docs.google.com/spreadsheets/d/" + id))
	return nil
}
