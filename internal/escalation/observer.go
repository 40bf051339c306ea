package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
)

const flagNotifyTimeout = 30 * time.Second

// FlagNotifier sends one message per flagged or failed row while a run is in
// progress.
type FlagNotifier struct {
	notifier service.Notifier
	logger   *slog.Logger
}

var _ engine.Observer = (*FlagNotifier)(nil)

// NewFlagNotifier creates the observer.
func NewFlagNotifier(notifier service.Notifier, logger *slog.Logger) *FlagNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlagNotifier{notifier: notifier, logger: logger}
}

// RowStarted implements engine.Observer.
func (f *FlagNotifier) RowStarted(int, int, model.Transaction) {}

// RowFinished implements engine.Observer.
func (f *FlagNotifier) RowFinished(_, _ int, txn model.Transaction, records []model.SettlementRecord) {
	for i := range records {
		rec := &records[i]
		if !rec.Disposition.IsOpen() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), flagNotifyTimeout)
		if err := f.notifier.Notify(ctx, flagMessage(rec, txn)); err != nil {
			f.logger.Warn("failed to send flag notification", "row", rec.Row, "error", err)
		}
		cancel()
	}
}

func flagMessage(rec *model.SettlementRecord, txn model.Transaction) string {
	if rec.Disposition == model.DispositionError {
		return fmt.Sprintf("❌ Satır %d (%s TL) işlenemedi: %s", rec.Row+1, rec.Amount.String(), rec.Note)
	}
	return fmt.Sprintf("🚩 Satır %d | %s | %s TL | %s", rec.Row+1, displayName(rec.Name), rec.Amount.String(), txn.Description)
}
