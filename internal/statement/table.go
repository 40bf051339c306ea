package statement

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
)

// columnIndex maps each wanted column to its position in the header row.
type columnIndex struct {
	description, amount, tag, date, balance int
}

// findHeader locates the header row. Bank exports put a block of account
// details above the table, so the row is searched for rather than assumed.
func findHeader(rows [][]string, cols Columns) (int, columnIndex, error) {
	want := columnIndex{-1, -1, -1, -1, -1}
	for i, row := range rows {
		idx := want
		for j, cell := range row {
			switch common.Fold(cell) {
			case common.Fold(cols.Description):
				idx.description = j
			case common.Fold(cols.Amount):
				idx.amount = j
			case common.Fold(cols.Tag):
				idx.tag = j
			case common.Fold(cols.Date):
				idx.date = j
			case common.Fold(cols.Balance):
				idx.balance = j
			}
		}
		if idx.description >= 0 && idx.amount >= 0 {
			return i, idx, nil
		}
	}
	return 0, want, fmt.Errorf("%w: no row with %q and %q", common.ErrHeaderNotFound, cols.Description, cols.Amount)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// tableToTransactions converts the rows below the header. Rows without a
// readable amount or date are skipped; Row numbers count kept rows only.
func tableToTransactions(rows [][]string, opts Options) ([]model.Transaction, error) {
	start, idx, err := findHeader(rows, opts.Columns)
	if err != nil {
		return nil, err
	}

	var txns []model.Transaction
	for i, row := range rows[start+1:] {
		if blank(row) {
			continue
		}
		amount, err := ParseAmount(cell(row, idx.amount))
		if err != nil {
			slog.Debug("Skipping statement row without amount", "line", start+2+i, "error", err)
			continue
		}
		date, err := ParseDate(cell(row, idx.date))
		if err != nil && idx.date >= 0 {
			slog.Debug("Skipping statement row without date", "line", start+2+i, "error", err)
			continue
		}

		txn := model.Transaction{
			Row:         len(txns),
			Description: cell(row, idx.description),
			Amount:      amount,
			Tag:         cell(row, idx.tag),
			Date:        date,
		}
		if raw := cell(row, idx.balance); raw != "" {
			if bal, err := ParseAmount(raw); err == nil {
				txn.Balance = &bal
			}
		}
		txns = append(txns, txn)
	}

	slog.Info("Parsed statement table", "header_line", start+1, "transactions", len(txns))
	return txns, nil
}
