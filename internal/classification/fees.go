// Package classification decides which payment categories a bank transfer
// settles on a student's account.
package classification

import (
	"fmt"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// FeeSchedule holds the posted prices the rules match against. Exam fees
// carry two variants: the full price first, then the retake price.
type FeeSchedule struct {
	WrittenExam             []decimal.Decimal
	PracticalExam           []decimal.Decimal
	DocumentFee             decimal.Decimal
	FailedCandidateTraining decimal.Decimal
	InstallmentIncrement    decimal.Decimal
	InstallmentMin          decimal.Decimal
	InstallmentMax          decimal.Decimal // exclusive
}

// DefaultFeeSchedule returns the school's current price list.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		WrittenExam:             []decimal.Decimal{decimal.NewFromInt(1200), decimal.NewFromInt(900)},
		PracticalExam:           []decimal.Decimal{decimal.NewFromInt(1600), decimal.NewFromInt(1350)},
		DocumentFee:             decimal.NewFromInt(1000),
		FailedCandidateTraining: decimal.NewFromInt(4000),
		InstallmentIncrement:    decimal.NewFromInt(500),
		InstallmentMin:          decimal.NewFromInt(2000),
		InstallmentMax:          decimal.NewFromInt(4000),
	}
}

// Validate checks that every price is positive and the band is well formed.
func (f FeeSchedule) Validate() error {
	if len(f.WrittenExam) == 0 || len(f.PracticalExam) == 0 {
		return fmt.Errorf("%w: exam fees need at least one price", common.ErrInvalidConfig)
	}
	all := append(append([]decimal.Decimal{}, f.WrittenExam...), f.PracticalExam...)
	all = append(all, f.DocumentFee, f.FailedCandidateTraining, f.InstallmentIncrement)
	for _, v := range all {
		if !v.IsPositive() {
			return fmt.Errorf("%w: fee %s must be positive", common.ErrInvalidConfig, v)
		}
	}
	if !f.InstallmentMin.LessThan(f.InstallmentMax) {
		return fmt.Errorf("%w: installment band [%s, %s) is empty", common.ErrInvalidConfig, f.InstallmentMin, f.InstallmentMax)
	}
	return nil
}

// compositeThreshold is the amount above which decomposition is attempted.
func (f FeeSchedule) compositeThreshold() decimal.Decimal {
	return f.PracticalExam[0]
}

// inBand reports whether amount is an installment-sized payment.
func (f FeeSchedule) inBand(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(f.InstallmentMin) &&
		amount.LessThan(f.InstallmentMax) &&
		f.divisible(amount)
}

func (f FeeSchedule) divisible(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Mod(f.InstallmentIncrement).IsZero()
}

// fixedFee is one (category, price) pair tried during decomposition.
type fixedFee struct {
	category model.Category
	amount   decimal.Decimal
}

// decompositionOrder lists the fees tried as the first term of a composite
// payment, most specific first.
func (f FeeSchedule) decompositionOrder() []fixedFee {
	out := make([]fixedFee, 0, len(f.PracticalExam)+len(f.WrittenExam)+2)
	for _, v := range f.PracticalExam {
		out = append(out, fixedFee{model.CategoryPracticalExamFee, v})
	}
	for _, v := range f.WrittenExam {
		out = append(out, fixedFee{model.CategoryWrittenExamFee, v})
	}
	out = append(out,
		fixedFee{model.CategoryDocumentFee, f.DocumentFee},
		fixedFee{model.CategoryFailedCandidateTraining, f.FailedCandidateTraining},
	)
	return out
}

// examFee returns the exam fee category whose posted price equals amount.
func (f FeeSchedule) examFee(amount decimal.Decimal) (model.Category, bool) {
	for _, v := range f.WrittenExam {
		if amount.Equal(v) {
			return model.CategoryWrittenExamFee, true
		}
	}
	for _, v := range f.PracticalExam {
		if amount.Equal(v) {
			return model.CategoryPracticalExamFee, true
		}
	}
	return "", false
}
