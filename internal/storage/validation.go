package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/kasa/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrNilParameter  = errors.New("parameter cannot be nil")
	ErrInvalidRecord = errors.New("invalid settlement record")
	ErrInvalidStatus = errors.New("invalid processing status")
	ErrNotResolvable = errors.New("record is not an open flag")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRecord enforces the settlement log invariants: closed decisions
// carry a category, and only flags may leave it unset.
func validateRecord(rec *model.SettlementRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if !rec.Disposition.Valid() {
		return fmt.Errorf("%w: unknown disposition %q", ErrInvalidRecord, rec.Disposition)
	}
	if rec.Disposition.IsSettled() {
		if rec.Category == nil || !rec.Category.Valid() {
			return fmt.Errorf("%w: %s record needs a category", ErrInvalidRecord, rec.Disposition)
		}
	}
	if rec.Category != nil && !rec.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, *rec.Category)
	}
	return nil
}

func validateStatus(status model.ProcessingStatus) error {
	switch status.Stage {
	case model.StageProcessing, model.StageAlmostCompleted, model.StageCompleted,
		model.StageFlagged, model.StageFailed:
		return nil
	default:
		return fmt.Errorf("%w: stage %q", ErrInvalidStatus, status.Stage)
	}
}
