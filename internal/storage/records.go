package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/shopspring/decimal"
)

const recordColumns = `id, run_id, row_index, name, amount, category, disposition, note, created_at, resolved_at`

var pendingDispositions = []model.Disposition{
	model.DispositionFlagNameNotFound,
	model.DispositionFlagAmbiguous,
	model.DispositionFlagPOS,
	model.DispositionError,
}

func pendingPlaceholders() (string, []any) {
	args := make([]any, len(pendingDispositions))
	for i, d := range pendingDispositions {
		args[i] = string(d)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(args)), ","), args
}

// AppendRecord writes a new settlement record and fills in its ID.
func (s *SQLiteStorage) AppendRecord(ctx context.Context, rec *model.SettlementRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var category sql.NullString
	if rec.Category != nil {
		category = sql.NullString{String: string(*rec.Category), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_records (run_id, row_index, name, amount, category, disposition, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Row, rec.Name, rec.Amount.String(), category, string(rec.Disposition), rec.Note, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append settlement record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read record id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListRecords returns records in insertion order.
func (s *SQLiteStorage) ListRecords(ctx context.Context, filter service.RecordFilter) ([]model.SettlementRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Disposition != "" {
		where = append(where, "disposition = ?")
		args = append(args, string(filter.Disposition))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT " + recordColumns + " FROM settlement_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SettlementRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlement records: %w", err)
	}
	return out, nil
}

// FirstPending returns the oldest open record, flag or failed row.
func (s *SQLiteStorage) FirstPending(ctx context.Context) (*model.SettlementRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	ph, args := pendingPlaceholders()
	// #nosec G202 - placeholders are generated, values are bound
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM settlement_records WHERE disposition IN ("+ph+") ORDER BY id LIMIT 1", args...)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pending record", common.ErrNotFound)
	}
	return rec, err
}

// CountPending returns the number of open records.
func (s *SQLiteStorage) CountPending(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	ph, args := pendingPlaceholders()
	var n int
	// #nosec G202 - placeholders are generated, values are bound
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM settlement_records WHERE disposition IN ("+ph+")", args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return n, nil
}

// ResolveRecord transitions an open record to PAID. The update only
// applies while the record still has the expected disposition, so two
// writers cannot both resolve it.
func (s *SQLiteStorage) ResolveRecord(ctx context.Context, id int64, expected model.Disposition, name string, category model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !expected.IsOpen() {
		return fmt.Errorf("%w: %s", ErrNotResolvable, expected)
	}
	if !category.Actionable() {
		return fmt.Errorf("%w: cannot resolve to category %q", ErrInvalidRecord, category)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE settlement_records
		SET disposition = ?, name = ?, category = ?, resolved_at = ?
		WHERE id = ? AND disposition = ?`,
		string(model.DispositionPaid), name, string(category), time.Now().UTC(), id, string(expected))
	if err != nil {
		return fmt.Errorf("failed to resolve record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var current string
		scanErr := tx.QueryRowContext(ctx, "SELECT disposition FROM settlement_records WHERE id = ?", id).Scan(&current)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("%w: record %d", common.ErrNotFound, id)
		}
		return fmt.Errorf("%w: record %d is %s, expected %s", common.ErrConflict, id, current, expected)
	}

	return tx.Commit()
}

// ClearRecords deletes every settlement record.
func (s *SQLiteStorage) ClearRecords(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settlement_records"); err != nil {
		return fmt.Errorf("failed to clear settlement records: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.SettlementRecord, error) {
	var (
		rec         model.SettlementRecord
		amount      string
		category    sql.NullString
		disposition string
		resolvedAt  sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.RunID, &rec.Row, &rec.Name, &amount, &category,
		&disposition, &rec.Note, &rec.CreatedAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan settlement record: %w", err)
	}

	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q on record %d", common.ErrDatabaseCorrupted, amount, rec.ID)
	}
	rec.Amount = a
	rec.Disposition = model.Disposition(disposition)
	if category.Valid {
		c := model.Category(category.String)
		rec.Category = &c
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return &rec, nil
}
