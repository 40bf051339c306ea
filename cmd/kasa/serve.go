package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Veraticus/kasa/internal/config"
	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/escalation"
	"github.com/Veraticus/kasa/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with the WhatsApp webhook",
		Long: `Serve the statement upload, run control and settlement log endpoints,
plus the Twilio WhatsApp webhook that resolves flagged rows from operator
replies.

Runs started over HTTP report to the operator over WhatsApp when they finish.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :3987)")
	cmd.Flags().String("uploads-dir", "", "directory for uploaded statements")

	// Bind flags to viper
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.uploads_dir", cmd.Flags().Lookup("uploads-dir"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

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

	// Initialize external services
	extractor, err := initExtractor(false)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	ledger, err := initGateway()
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	notifier, twilio, err := initNotifier()
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	classifier, err := initClassifier()
	if err != nil {
		return err
	}

	// Runs started over HTTP report back over WhatsApp
	driver, err := newDriver(driverDeps{extractor: extractor, ledger: ledger, log: store, status: status})
	if err != nil {
		return err
	}
	supervisor := engine.NewSupervisor(driver, status, escalation.NotifyOnFinish(store, notifier, slog.Default()), slog.Default())

	deps := server.Deps{
		Runs:       supervisor,
		Archiver:   store,
		Log:        store,
		Status:     status,
		Notifier:   notifier,
		Statements: loadStatement,
	}
	if twilio != nil {
		deps.Media = twilio
	}
	// Operator replies need the LLM to read them
	if extractor != nil {
		resolver, rerr := escalation.New(escalation.Deps{
			Log:       store,
			Extractor: extractor,
			Settler:   ledger,
			Notifier:  notifier,
			Inferrer:  classifier,
		}, slog.Default())
		if rerr != nil {
			return rerr
		}
		deps.Escalator = resolver
	} else {
		slog.Warn("WhatsApp replies are disabled until llm.api_key is set")
	}

	var runOpts engine.RunOptions
	runOpts.EnterUnowed = viper.GetBool("engine.enter_unowed")
	if viper.GetBool("engine.notify_each") {
		runOpts.Observer = escalation.NewFlagNotifier(notifier, slog.Default())
	}

	srv, err := server.New(server.Config{
		Addr:       viper.GetString("server.addr"),
		UploadsDir: config.ExpandPath(viper.GetString("server.uploads_dir")),
		RunOptions: runOpts,
	}, deps, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("Starting kasa server", "addr", viper.GetString("server.addr"), "status_backend", viper.GetString("status.backend"))
	return srv.ListenAndServe(ctx)
}
