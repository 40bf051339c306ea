package notify

import (
	"context"
	"log/slog"

	"github.com/Veraticus/kasa/internal/service"
)

// LogNotifier writes messages to a logger. It stands in for Twilio when no
// credentials are configured.
type LogNotifier struct {
	Logger *slog.Logger
}

var _ service.Notifier = LogNotifier{}

// Notify implements service.Notifier.
func (n LogNotifier) Notify(_ context.Context, body string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Operator message", "body", body)
	return nil
}
