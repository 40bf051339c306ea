package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/kasa/internal/config"
	"github.com/Veraticus/kasa/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on start; this one lets you inspect the
schema or prepare a database ahead of time.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	statusOnly, _ := cmd.Flags().GetBool("status")
	dbPath := config.ExpandPath(viper.GetString("database.path"))

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if statusOnly {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		pending, err := store.PendingMigrations(ctx)
		if err != nil {
			return err
		}
		slog.Info("📊 Database Migration Status", "path", dbPath, "current", current, "latest", storage.ExpectedSchemaVersion)
		for _, m := range pending {
			slog.Info("Pending migration", "version", m.Version, "description", m.Description)
		}
		if len(pending) == 0 {
			slog.Info("✅ Database is up to date")
		}
		return nil
	}

	slog.Info("🗄️  Running database migrations...", "path", dbPath)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("✅ Database migrations completed successfully!")
	return nil
}
