package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Veraticus/kasa/internal/cli"
	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/escalation"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <statement>",
		Short: "Reconcile a bank statement against the ledger",
		Long: `Read a bank statement (xlsx, csv or ofx), resolve the payer of every
incoming transfer and enter the payments on the student ledger.

Without --resume-balance every row is processed from the top. With it, the
row whose running balance matches is located and the rows above it are
processed walking back to the first row, which continues an interrupted run.`,
		Args: cobra.ExactArgs(1),
		RunE: runReconcile,
	}

	cmd.Flags().String("resume-balance", "", "running balance of the last row already handled")
	cmd.Flags().Bool("enter-unowed", false, "enter payments even when the ledger shows nothing owed")
	cmd.Flags().Bool("notify-each", false, "send a WhatsApp message for every flagged row")
	cmd.Flags().Bool("records", true, "print the run's settlement records when done")

	// Bind flags to viper
	_ = viper.BindPFlag("engine.enter_unowed", cmd.Flags().Lookup("enter-unowed"))
	_ = viper.BindPFlag("engine.notify_each", cmd.Flags().Lookup("notify-each"))

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	interruptHandler := cli.NewInterruptHandler(os.Stderr)
	ctx := interruptHandler.HandleInterrupts(cmd.Context())

	resumeFlag, _ := cmd.Flags().GetString("resume-balance")
	resume, err := parseResume(resumeFlag)
	if err != nil {
		return err
	}
	showRecords, _ := cmd.Flags().GetBool("records")

	// Load the statement before touching any storage
	txns, err := loadStatement(ctx, args[0])
	if err != nil {
		return err
	}

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

	driver, err := newDriver(driverDeps{extractor: extractor, ledger: ledger, log: store, status: status})
	if err != nil {
		return err
	}

	// Set up observers
	progress := cli.NewRunProgress(os.Stderr)
	last := &lastBalance{}
	observers := []engine.Observer{progress, last}
	if viper.GetBool("engine.notify_each") {
		notifier, _, nerr := initNotifier()
		if nerr != nil {
			return fmt.Errorf("failed to create notifier: %w", nerr)
		}
		observers = append(observers, escalation.NewFlagNotifier(notifier, slog.Default()))
	}

	runID := uuid.NewString()
	summary, runErr := driver.Run(ctx, txns, engine.RunOptions{
		RunID:         runID,
		ResumeBalance: resume,
		Observer:      engine.Observers(observers...),
		EnterUnowed:   viper.GetBool("engine.enter_unowed"),
	})

	// Show results
	fmt.Fprintln(os.Stderr) // finish the progress bar line
	fmt.Println(cli.RenderSummary(summary))

	if showRecords && summary != nil && !summary.AlreadyComplete {
		records, err := store.ListRecords(cmd.Context(), service.RecordFilter{RunID: runID})
		if err != nil {
			slog.Warn("Failed to list run records", "error", err)
		} else {
			fmt.Println(cli.RenderRecords(records))
		}
	}

	if runErr != nil {
		// An interrupted resume run can be continued from the last finished row
		if interruptHandler.WasInterrupted() && resume != nil {
			if b := last.get(); b != nil {
				fmt.Println(cli.FormatInfo(fmt.Sprintf("Resume with: kasa run %s --resume-balance %s", args[0], b.StringFixed(2))))
			}
		}
		if interruptHandler.WasInterrupted() {
			return nil
		}
		return runErr
	}
	return nil
}

// lastBalance remembers the running balance of the most recent finished row.
type lastBalance struct {
	balance *decimal.Decimal
	mu      sync.Mutex
}

func (l *lastBalance) RowStarted(int, int, model.Transaction) {}

func (l *lastBalance) RowFinished(_, _ int, txn model.Transaction, _ []model.SettlementRecord) {
	if txn.Balance == nil {
		return
	}
	l.mu.Lock()
	b := *txn.Balance
	l.balance = &b
	l.mu.Unlock()
}

func (l *lastBalance) get() *decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}
