package classification

import (
	"time"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// Classifier maps a transfer amount onto the categories it settles. It is
// stateless; Classify returns the same result for the same inputs.
type Classifier struct {
	fees FeeSchedule
}

// New creates a classifier for the given fee schedule. The schedule must
// pass Validate.
func New(fees FeeSchedule) (*Classifier, error) {
	if err := fees.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{fees: fees}, nil
}

// Fees returns the schedule the classifier matches against.
func (c *Classifier) Fees() FeeSchedule {
	return c.fees
}

// Classify returns the category assignments for a transfer of amount made
// on date, given the student's account. Rules are tried in order and the
// first that applies decides the result. The result may be empty when an
// installment-sized amount matches nothing on the account.
func (c *Classifier) Classify(amount decimal.Decimal, date time.Time, snap *model.AccountSnapshot) []model.CategoryAssignment {
	v := newView(snap, date)

	if cat, ok := c.fees.examFee(amount); ok {
		return c.exactFeeRule(v, cat, amount)
	}
	if amount.Equal(c.fees.FailedCandidateTraining) {
		return c.failedCandidateRule(v, amount)
	}
	if c.fees.inBand(amount) {
		return c.installmentRule(v, amount)
	}
	if amount.GreaterThan(c.fees.compositeThreshold()) {
		if out := c.compositeRule(v, amount); out != nil {
			return out
		}
	}
	return []model.CategoryAssignment{
		assign(model.CategoryUnknown, model.DispositionFlagAmbiguous, amount),
	}
}

func assign(c model.Category, d model.Disposition, amount decimal.Decimal) model.CategoryAssignment {
	return model.CategoryAssignment{Category: c, Disposition: d, SettledAmount: amount}
}

// exactFeeRule handles amounts equal to a posted fee. Owed items must match
// the amount too, which separates a retake charge from the original one.
func (c *Classifier) exactFeeRule(v view, cat model.Category, amount decimal.Decimal) []model.CategoryAssignment {
	switch {
	case v.owedFeeAt(cat, amount):
		return []model.CategoryAssignment{assign(cat, model.DispositionOwed, amount)}
	case v.paidFee(cat):
		return []model.CategoryAssignment{assign(cat, model.DispositionPaid, amount)}
	default:
		return []model.CategoryAssignment{assign(cat, model.DispositionNotOwed, amount)}
	}
}

func (c *Classifier) failedCandidateRule(v view, amount decimal.Decimal) []model.CategoryAssignment {
	fct := model.CategoryFailedCandidateTraining
	switch {
	case v.owedFee(fct):
		return []model.CategoryAssignment{assign(fct, model.DispositionOwed, amount)}
	case v.paidFee(fct):
		return []model.CategoryAssignment{assign(fct, model.DispositionPaid, amount)}
	case v.owedInstallmentAt(amount):
		return []model.CategoryAssignment{assign(model.CategoryInstallment, model.DispositionOwed, amount)}
	default:
		return []model.CategoryAssignment{assign(model.CategoryAmbiguous4000, model.DispositionFlagAmbiguous, amount)}
	}
}

func (c *Classifier) installmentRule(v view, amount decimal.Decimal) []model.CategoryAssignment {
	switch {
	case v.owedFee(model.CategoryDocumentFee):
		doc := c.fees.DocumentFee
		return []model.CategoryAssignment{
			assign(model.CategoryDocumentFee, model.DispositionOwed, doc),
			assign(model.CategoryInstallment, model.DispositionOwed, amount.Sub(doc)),
		}
	case v.owedInstallment():
		return []model.CategoryAssignment{assign(model.CategoryInstallment, v.installmentDisposition(), amount)}
	case v.paidInstallmentSince():
		return []model.CategoryAssignment{assign(model.CategoryInstallment, model.DispositionPaid, amount)}
	default:
		return []model.CategoryAssignment{}
	}
}

// installmentDisposition applies the date rule: a paid installment dated on
// or after the transfer closes it, anything else leaves it owed.
func (v view) installmentDisposition() model.Disposition {
	if v.paidInstallmentSince() {
		return model.DispositionPaid
	}
	return model.DispositionOwed
}

// feeDisposition reports how a fee used as the first term of a composite
// payment stands on the account. Exam fees must match the posted variant.
func (v view) feeDisposition(f fixedFee) (model.Disposition, bool) {
	owed := v.owedFee(f.category)
	if f.category == model.CategoryWrittenExamFee || f.category == model.CategoryPracticalExamFee {
		owed = v.owedFeeAt(f.category, f.amount)
	}
	switch {
	case owed:
		return model.DispositionOwed, true
	case v.paidFee(f.category):
		return model.DispositionPaid, true
	default:
		return "", false
	}
}

// compositeRule splits amount into a fixed fee plus a remainder. Exact
// remainder matches are tried across every fee before the modulo fallback.
func (c *Classifier) compositeRule(v view, amount decimal.Decimal) []model.CategoryAssignment {
	fct := c.fees.FailedCandidateTraining
	if v.owedFee(model.CategoryFailedCandidateTraining) {
		rest := amount.Sub(fct)
		if rest.IsPositive() {
			if cat, ok := v.owedOtherAt(rest); ok {
				return []model.CategoryAssignment{
					assign(model.CategoryFailedCandidateTraining, model.DispositionOwed, fct),
					assign(cat, model.DispositionOwed, rest),
				}
			}
		}
	}

	order := c.fees.decompositionOrder()

	for _, f := range order {
		rest := amount.Sub(f.amount)
		if !rest.IsPositive() || !v.owedInstallmentAt(rest) {
			continue
		}
		if d, ok := v.feeDisposition(f); ok {
			return []model.CategoryAssignment{
				assign(f.category, d, f.amount),
				assign(model.CategoryInstallment, model.DispositionOwed, rest),
			}
		}
	}

	for _, f := range order {
		rest := amount.Sub(f.amount)
		if !c.fees.divisible(rest) {
			continue
		}
		d, ok := v.feeDisposition(f)
		if !ok {
			continue
		}
		second := assign(model.CategoryInstallment, v.installmentDisposition(), rest)
		if rest.Equal(fct) {
			second = assign(model.CategoryAmbiguous4000, model.DispositionFlagAmbiguous, rest)
		}
		return []model.CategoryAssignment{assign(f.category, d, f.amount), second}
	}

	return nil
}
