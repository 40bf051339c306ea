package statement

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/kasa/internal/model"
)

// CSVReader reads a statement exported as delimited text. Semicolon and
// comma delimiters are detected from the header block.
type CSVReader struct {
	opts Options
}

// Read parses CSV statement data.
func (r *CSVReader) Read(ctx context.Context, in io.Reader) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return tableToTransactions(rows, r.opts)
}

// detectDelimiter counts separators over the first lines. Turkish exports
// use ';' because ',' is the decimal mark.
func detectDelimiter(data []byte) rune {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	semi, comma := 0, 0
	for i := 0; i < 20 && scanner.Scan(); i++ {
		line := scanner.Text()
		semi += strings.Count(line, ";")
		comma += strings.Count(line, ",")
	}
	if semi > 0 && semi >= comma/2 {
		return ';'
	}
	return ','
}
