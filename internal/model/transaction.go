package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one normalized bank-statement row.
type Transaction struct {
	Date        time.Time
	Balance     *decimal.Decimal // running balance, nil when the statement has none
	Description string
	Tag         string
	Amount      decimal.Decimal
	Row         int // 0-based index below the header row
}

// Day truncates t to its calendar day in UTC so dates from different
// sources compare by day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsIncome reports whether the transaction moves money into the account.
func (t Transaction) IsIncome() bool {
	return !t.Amount.IsNegative()
}

// LedgerItem is one entry on a student's external account.
type LedgerItem struct {
	Date     *time.Time
	Amount   *decimal.Decimal
	Category Category
	Settled  bool
}

// AccountSnapshot is a read-only view of a student's account at fetch time.
type AccountSnapshot struct {
	OwedFees         []LedgerItem
	PaidFees         []LedgerItem
	OwedInstallments []LedgerItem
	PaidInstallments []LedgerItem
}

// Empty reports whether the snapshot has no items at all.
func (s *AccountSnapshot) Empty() bool {
	return s == nil || len(s.OwedFees)+len(s.PaidFees)+len(s.OwedInstallments)+len(s.PaidInstallments) == 0
}

// CategoryAssignment is one classification decision for a transaction.
type CategoryAssignment struct {
	Category      Category
	Disposition   Disposition
	SettledAmount decimal.Decimal
}

// SettlementRequest is a single effectful entry on the external ledger.
type SettlementRequest struct {
	Name        string
	Category    Category
	Disposition Disposition
	Amount      decimal.Decimal
}
