package escalation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/service"
)

// NotifyOnFinish returns an engine.FinishFunc that sends the run report, or
// the failure, to the operator.
func NotifyOnFinish(log service.SettlementLog, notifier service.Notifier, logger *slog.Logger) engine.FinishFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, summary *engine.RunSummary, err error) {
		body, buildErr := finishMessage(ctx, log, summary, err)
		if buildErr != nil {
			logger.Warn("Failed to build run report", "error", buildErr)
			body = FailureMessage(buildErr)
		}
		if notifyErr := notifier.Notify(ctx, body); notifyErr != nil {
			logger.Error("Failed to send run report", "error", notifyErr)
		}
	}
}

func finishMessage(ctx context.Context, log service.SettlementLog, summary *engine.RunSummary, err error) (string, error) {
	if summary == nil {
		return FailureMessage(err), nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return FailureMessage(err), nil
	}

	records, listErr := log.ListRecords(ctx, service.RecordFilter{RunID: summary.RunID})
	if listErr != nil {
		return "", listErr
	}
	pending, countErr := log.CountPending(ctx)
	if countErr != nil {
		return "", countErr
	}

	body := Report(records, pending)
	if summary.Cancelled {
		body = "İşlem durduruldu.\n" + body
	}
	if summary.AlreadyComplete {
		body = "Bu ekstre zaten işlenmiş."
	}
	return body, nil
}
