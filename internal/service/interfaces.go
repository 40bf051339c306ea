// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/kasa/internal/model"
)

// SnapshotReader fetches a student's account from the external ledger.
// It returns an error wrapping common.ErrNotFound when no student matches.
type SnapshotReader interface {
	FetchSnapshot(ctx context.Context, name string) (*model.AccountSnapshot, error)
}

// SettlementAction enters one payment or debt on the external ledger.
// Calls are not idempotent and are never retried by the caller.
type SettlementAction interface {
	Settle(ctx context.Context, req model.SettlementRequest) error
}

// Notifier delivers a plain-text message to the operator.
type Notifier interface {
	Notify(ctx context.Context, body string) error
}

// RecordFilter narrows settlement log queries.
type RecordFilter struct {
	Since       *time.Time
	RunID       string
	Disposition model.Disposition
	Limit       int
}

// SettlementLog is the durable record of reconciliation decisions.
type SettlementLog interface {
	AppendRecord(ctx context.Context, rec *model.SettlementRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.SettlementRecord, error)
	FirstPending(ctx context.Context) (*model.SettlementRecord, error)
	CountPending(ctx context.Context) (int, error)
	// ResolveRecord moves a flagged record to PAID with the patched name and
	// category. It fails with common.ErrConflict if the record is no longer
	// in the expected disposition.
	ResolveRecord(ctx context.Context, id int64, expected model.Disposition, name string, category model.Category) error
	ClearRecords(ctx context.Context) error
}

// StatusStore holds the single live ProcessingStatus value.
type StatusStore interface {
	SetStatus(ctx context.Context, status model.ProcessingStatus) error
	GetStatus(ctx context.Context) (*model.ProcessingStatus, error)
	ClearStatus(ctx context.Context) error
}
