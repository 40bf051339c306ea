package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/kasa/internal/classification"
	"github.com/Veraticus/kasa/internal/config"
	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/gateway"
	"github.com/Veraticus/kasa/internal/llm"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/notify"
	"github.com/Veraticus/kasa/internal/payer"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/statement"
	"github.com/Veraticus/kasa/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// initStorage opens the settlement database and applies migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	if dbPath == "" {
		dbPath = config.ExpandPath(config.DefaultDatabasePath)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}

// initStatusStore returns the configured ProcessingStatus backend. The
// returned cleanup func is always safe to call.
func initStatusStore(ctx context.Context, store *storage.SQLiteStorage) (service.StatusStore, func(), error) {
	switch backend := viper.GetString("status.backend"); backend {
	case "", "sqlite":
		return store, func() {}, nil
	case "redis":
		client, err := storage.ConnectRedis(ctx, viper.GetString("status.redis_url"))
		if err != nil {
			return nil, func() {}, err
		}
		slog.Info("Using redis status backend", "addr", client.Options().Addr)
		return storage.NewRedisStatusStore(client, viper.GetString("status.redis_key")), func() { _ = client.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown status.backend %q (use sqlite or redis)", backend)
	}
}

// initExtractor builds the LLM extractor. With required false a missing API
// key yields a nil extractor and the payer rules run without LLM help.
func initExtractor(required bool) (*llm.Extractor, error) {
	cfg := config.LLM(viper.GetViper())
	if cfg.APIKey == "" && !required {
		slog.Warn("llm.api_key not set; payer names come from description rules only")
		return nil, nil
	}
	return llm.NewExtractor(cfg, slog.Default())
}

func initGateway() (*gateway.Client, error) {
	return gateway.New(config.Gateway(viper.GetViper()), slog.Default())
}

// initNotifier returns Twilio when configured and a log notifier otherwise.
// The Twilio client is returned separately for media downloads.
func initNotifier() (service.Notifier, *notify.Twilio, error) {
	v := viper.GetViper()
	if !config.TwilioConfigured(v) {
		return notify.LogNotifier{Logger: slog.Default()}, nil, nil
	}
	tw, err := notify.New(config.Twilio(v), slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return tw, tw, nil
}

func initClassifier() (*classification.Classifier, error) {
	fees, err := config.FeeSchedule(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return classification.New(fees)
}

// driverDeps are the pieces newDriver wires together.
type driverDeps struct {
	extractor *llm.Extractor
	ledger    *gateway.Client
	log       service.SettlementLog
	status    service.StatusStore
}

func newDriver(d driverDeps) (*engine.Driver, error) {
	classifier, err := initClassifier()
	if err != nil {
		return nil, err
	}

	var names payer.NameExtractor
	if d.extractor != nil {
		names = d.extractor
	}

	return engine.NewDriver(engine.Deps{
		Classifier: classifier,
		Payers:     payer.NewResolver(names, slog.Default()),
		Snapshots:  d.ledger,
		Settler:    d.ledger,
		Log:        d.log,
		Status:     d.status,
	}, viper.GetString("statement.transfer_tag"), slog.Default())
}

// loadStatement reads a statement file with the configured options.
func loadStatement(ctx context.Context, path string) ([]model.Transaction, error) {
	v := viper.GetViper()
	txns, err := statement.ReadFile(ctx, path, config.StatementFormat(v), config.Statement(v))
	if err != nil {
		return nil, fmt.Errorf("failed to read statement %s: %w", path, err)
	}
	slog.Info("Statement loaded", "file", path, "rows", len(txns))
	return txns, nil
}

// parseResume parses a resume balance in Turkish or English notation.
func parseResume(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := statement.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("invalid resume balance %q: %w", s, err)
	}
	return &d, nil
}
