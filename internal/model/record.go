package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRecord is a persisted reconciliation decision. Records are
// append-only except for the FLAG to PAID transition made by escalation.
type SettlementRecord struct {
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	Category    *Category // nil only for flagged records
	RunID       string
	Name        string
	Disposition Disposition
	Note        string
	Amount      decimal.Decimal
	ID          int64
	Row         int
}

// CategoryOrEmpty returns the record category or "" when unset.
func (r *SettlementRecord) CategoryOrEmpty() Category {
	if r.Category == nil {
		return ""
	}
	return *r.Category
}

// Stage is the progress stage reported by ProcessingStatus.
type Stage string

// Processing stages.
const (
	StageProcessing      Stage = "processing"
	StageAlmostCompleted Stage = "almost_completed"
	StageCompleted       Stage = "completed"
	StageFlagged         Stage = "flagged"
	StageFailed          Stage = "failed"
)

// ProcessingStatus is the single live progress value for observers.
type ProcessingStatus struct {
	UpdatedAt time.Time
	Name      string
	Stage     Stage
	Category  Category
	Amount    decimal.Decimal
}
