package tui

import (
	"time"

	"github.com/Veraticus/kasa/internal/model"
)

// tickMsg schedules the next poll.
type tickMsg time.Time

// snapshotMsg carries one poll of the log and status.
type snapshotMsg struct {
	at      time.Time
	err     error
	status  *model.ProcessingStatus
	records []model.SettlementRecord
	pending int
}
