package classification

import (
	"sort"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// InferCategory guesses a category from the amount alone. It is used when
// no account snapshot is available, e.g. for rows whose payer is unknown.
func (c *Classifier) InferCategory(amount decimal.Decimal) model.Category {
	f := c.fees
	if cat, ok := f.examFee(amount); ok {
		return cat
	}
	if amount.Equal(f.DocumentFee) {
		return model.CategoryDocumentFee
	}
	if amount.Equal(f.FailedCandidateTraining) {
		return model.CategoryAmbiguous4000
	}
	if f.inBand(amount) {
		return model.CategoryInstallment
	}
	for _, fee := range []fixedFee{
		{model.CategoryPracticalExamFee, f.PracticalExam[0]},
		{model.CategoryWrittenExamFee, f.WrittenExam[0]},
	} {
		if amount.GreaterThan(fee.amount) && f.divisible(amount.Sub(fee.amount)) {
			return fee.category
		}
	}
	return model.CategoryUnknown
}

// SortForSettlement returns the assignments with installments moved to the
// end, preserving the relative order of everything else. Installments take
// whatever is left after fixed fees are entered.
func SortForSettlement(in []model.CategoryAssignment) []model.CategoryAssignment {
	out := make([]model.CategoryAssignment, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category != model.CategoryInstallment && out[j].Category == model.CategoryInstallment
	})
	return out
}

// SettlementAmounts splits total across sorted assignments: fixed fees take
// their assigned amount and the trailing installment takes the rest.
func SettlementAmounts(total decimal.Decimal, sorted []model.CategoryAssignment) []decimal.Decimal {
	out := make([]decimal.Decimal, len(sorted))
	remaining := total
	for i, a := range sorted {
		if a.Category == model.CategoryInstallment {
			out[i] = remaining
			if remaining.IsNegative() {
				out[i] = decimal.Zero
			}
			remaining = decimal.Zero
			continue
		}
		out[i] = a.SettledAmount
		remaining = remaining.Sub(a.SettledAmount)
	}
	return out
}
