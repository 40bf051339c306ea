package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// SetStatus overwrites the live processing status.
func (s *SQLiteStorage) SetStatus(ctx context.Context, status model.ProcessingStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_status (id, name, stage, category, amount, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			stage = excluded.stage,
			category = excluded.category,
			amount = excluded.amount,
			updated_at = excluded.updated_at`,
		status.Name, string(status.Stage), string(status.Category), status.Amount.String(), status.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save processing status: %w", err)
	}
	return nil
}

// GetStatus returns the live processing status, or an error wrapping
// common.ErrNotFound when none has been set since the last reset.
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*model.ProcessingStatus, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		status   model.ProcessingStatus
		stage    string
		category string
		amount   string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT name, stage, category, amount, updated_at FROM processing_status WHERE id = 1").
		Scan(&status.Name, &stage, &category, &amount, &status.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: processing status", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load processing status: %w", err)
	}

	status.Stage = model.Stage(stage)
	status.Category = model.Category(category)
	if status.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("%w: status amount %q", common.ErrDatabaseCorrupted, amount)
	}
	return &status, nil
}

// ClearStatus removes the live processing status.
func (s *SQLiteStorage) ClearStatus(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM processing_status"); err != nil {
		return fmt.Errorf("failed to clear processing status: %w", err)
	}
	return nil
}
