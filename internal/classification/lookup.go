package classification

import (
	"time"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// view answers the questions the rules ask of a snapshot. A nil snapshot
// behaves like an empty account.
type view struct {
	snap *model.AccountSnapshot
	date time.Time
}

func newView(snap *model.AccountSnapshot, date time.Time) view {
	if snap == nil {
		snap = &model.AccountSnapshot{}
	}
	return view{snap: snap, date: date}
}

func amountIs(item model.LedgerItem, amount decimal.Decimal) bool {
	return item.Amount != nil && item.Amount.Equal(amount)
}

func hasCategory(items []model.LedgerItem, c model.Category) bool {
	for _, it := range items {
		if it.Category == c {
			return true
		}
	}
	return false
}

// owedFee reports an owed fee of category c.
func (v view) owedFee(c model.Category) bool {
	return hasCategory(v.snap.OwedFees, c)
}

// owedFeeAt reports an owed fee of category c posted at exactly amount.
func (v view) owedFeeAt(c model.Category, amount decimal.Decimal) bool {
	for _, it := range v.snap.OwedFees {
		if it.Category == c && amountIs(it, amount) {
			return true
		}
	}
	return false
}

// paidFee reports a paid fee of category c.
func (v view) paidFee(c model.Category) bool {
	return hasCategory(v.snap.PaidFees, c)
}

func (v view) owedInstallment() bool {
	return len(v.snap.OwedInstallments) > 0
}

func (v view) owedInstallmentAt(amount decimal.Decimal) bool {
	for _, it := range v.snap.OwedInstallments {
		if amountIs(it, amount) {
			return true
		}
	}
	return false
}

// paidInstallmentSince reports a paid installment dated on or after the
// transaction. Earlier payments cannot be the one this transfer made.
func (v view) paidInstallmentSince() bool {
	for _, it := range v.snap.PaidInstallments {
		if it.Date != nil && !model.Day(*it.Date).Before(model.Day(v.date)) {
			return true
		}
	}
	return false
}

// owedOtherAt finds any owed item other than failed-candidate training
// whose amount equals amount exactly.
func (v view) owedOtherAt(amount decimal.Decimal) (model.Category, bool) {
	for _, it := range v.snap.OwedFees {
		if it.Category != model.CategoryFailedCandidateTraining && amountIs(it, amount) {
			return it.Category, true
		}
	}
	if v.owedInstallmentAt(amount) {
		return model.CategoryInstallment, true
	}
	return "", false
}
