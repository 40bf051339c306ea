package statement

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/xuri/excelize/v2"
)

// XLSXReader reads the bank's Excel account export.
type XLSXReader struct {
	opts Options
}

// Read parses the configured sheet, or the first sheet when none is set.
// Cells are read raw so dates arrive as serial numbers and amounts unformatted.
func (r *XLSXReader) Read(ctx context.Context, in io.Reader) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(in)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := r.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return tableToTransactions(rows, r.opts)
}
