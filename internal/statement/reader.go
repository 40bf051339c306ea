// Package statement reads bank statements into normalized transactions.
package statement

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
)

// Format identifies a statement file format.
type Format string

// Supported statement formats.
const (
	FormatAuto Format = "auto"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatOFX  Format = "ofx"
)

// DefaultTransferTag is the tag the bank puts on incoming transfers.
const DefaultTransferTag = "Para Transferi"

// Columns names the statement header cells. Matching ignores case and
// Turkish diacritics.
type Columns struct {
	Description string
	Amount      string
	Tag         string
	Date        string
	Balance     string
}

// DefaultColumns returns the headers used by the bank's account export.
func DefaultColumns() Columns {
	return Columns{
		Description: "Açıklama",
		Amount:      "Tutar",
		Tag:         "Etiket",
		Date:        "Tarih",
		Balance:     "Bakiye",
	}
}

// Options configures statement parsing.
type Options struct {
	Columns     Columns
	Sheet       string // xlsx sheet name, first sheet when empty
	TransferTag string
}

// DefaultOptions returns options for the bank's standard export.
func DefaultOptions() Options {
	return Options{Columns: DefaultColumns(), TransferTag: DefaultTransferTag}
}

func (o Options) withDefaults() Options {
	def := DefaultColumns()
	if o.Columns.Description == "" {
		o.Columns.Description = def.Description
	}
	if o.Columns.Amount == "" {
		o.Columns.Amount = def.Amount
	}
	if o.Columns.Tag == "" {
		o.Columns.Tag = def.Tag
	}
	if o.Columns.Date == "" {
		o.Columns.Date = def.Date
	}
	if o.Columns.Balance == "" {
		o.Columns.Balance = def.Balance
	}
	if o.TransferTag == "" {
		o.TransferTag = DefaultTransferTag
	}
	return o
}

// Reader parses one statement format.
type Reader interface {
	Read(ctx context.Context, r io.Reader) ([]model.Transaction, error)
}

// NewReader returns the reader for format.
func NewReader(format Format, opts Options) (Reader, error) {
	opts = opts.withDefaults()
	switch format {
	case FormatXLSX:
		return &XLSXReader{opts: opts}, nil
	case FormatCSV:
		return &CSVReader{opts: opts}, nil
	case FormatOFX:
		return &OFXReader{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, format)
	}
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".ofx", ".qfx":
		return FormatOFX, nil
	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadFile opens path and parses it. FormatAuto or "" detects the format
// from the extension.
func ReadFile(ctx context.Context, path string, format Format, opts Options) ([]model.Transaction, error) {
	if format == "" || format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	reader, err := NewReader(format, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	txns, err := reader.Read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s statement %s: %w", format, filepath.Base(path), err)
	}
	return txns, nil
}
