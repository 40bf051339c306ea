package statement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXReader reads OFX/QFX bank downloads. OFX carries no per-row running
// balance, so resuming by balance is not available for these statements.
type OFXReader struct {
	opts Options
}

// preprocess fixes common formatting issues in bank-generated OFX.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Read parses every bank statement in the file, in file order.
func (r *OFXReader) Read(ctx context.Context, in io.Reader) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var txns []model.Transaction
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, ofxTx := range stmt.BankTranList.Transactions {
			txns = append(txns, r.convert(ofxTx, len(txns)))
		}
	}

	slog.Info("Parsed OFX statement", "transactions", len(txns), "bank_statements", len(resp.Bank))
	return txns, nil
}

// convert maps an OFX transaction. Incoming transfer types get the
// configured transfer tag so the driver treats them like the Excel export.
func (r *OFXReader) convert(ofxTx ofxgo.Transaction, row int) model.Transaction {
	trnType := fmt.Sprintf("%v", ofxTx.TrnType)
	tag := trnType
	switch trnType {
	case "XFER", "CREDIT", "DEP", "DIRECTDEP":
		tag = r.opts.TransferTag
	}

	description := strings.TrimSpace(string(ofxTx.Name))
	if memo := strings.TrimSpace(string(ofxTx.Memo)); memo != "" {
		if description == "" {
			description = memo
		} else {
			description += " " + memo
		}
	}

	return model.Transaction{
		Row:         row,
		Date:        model.Day(ofxTx.DtPosted.Time),
		Description: description,
		Amount:      decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2),
		Tag:         tag,
	}
}
