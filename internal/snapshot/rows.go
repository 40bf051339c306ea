// Package snapshot turns the text rows read off a student's account screen
// into a typed account snapshot.
package snapshot

import (
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/statement"
)

var (
	amountRegex = regexp.MustCompile(`\b\d{1,3}(?:\.\d{3})*,\d{2}\b`)
	dateRegex   = regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)
)

var headerWords = []string{"TIPI", "BORC", "DURUMU", "VADE"}

// keywordRule maps abbreviations seen on the ledger screen to a category.
// All words in one of the groups must appear.
type keywordRule struct {
	category model.Category
	groups   [][]string
}

var keywordRules = []keywordRule{
	{model.CategoryWrittenExamFee, [][]string{{"YZL", "SNV"}, {"YAZILI"}}},
	{model.CategoryPracticalExamFee, [][]string{{"UYG", "SNV"}, {"UYGULAMA"}}},
	{model.CategoryFailedCandidateTraining, [][]string{{"BASARISIZ"}, {"ADAY"}, {"EGITIMI"}}},
	{model.CategoryPrivateLesson, [][]string{{"OZEL"}, {"DERS"}}},
	{model.CategoryDocumentFee, [][]string{{"BELGE"}, {"UCRETI"}}},
	{model.CategoryInstallment, [][]string{{"TAKSIT"}, {"TKST"}}},
}

// isHeader reports a column-title row. Two title words are required since
// data rows can carry a single one, e.g. a "BORÇ VAR" status.
func isHeader(folded string) bool {
	n := 0
	for _, w := range headerWords {
		if strings.Contains(folded, w) {
			n++
		}
	}
	return n >= 2
}

func categoryOf(folded string) (model.Category, bool) {
	for _, rule := range keywordRules {
		for _, group := range rule.groups {
			all := true
			for _, w := range group {
				if !strings.Contains(folded, w) {
					all = false
					break
				}
			}
			if all {
				return rule.category, true
			}
		}
	}
	return "", false
}

// ParseRow reads one ledger line. Paid lines that show both the due date and
// the payment date ("... ÖDEDİ ...") are dated by the payment. ok is false
// for header lines and lines without a recognisable category.
func ParseRow(row string, paid bool) (item model.LedgerItem, ok bool) {
	folded := common.Fold(strings.ReplaceAll(row, "YAZDIR", ""))
	if folded == "" || isHeader(folded) {
		return item, false
	}
	cat, found := categoryOf(folded)
	if !found {
		return item, false
	}
	item.Category = cat
	item.Settled = paid

	if matches := amountRegex.FindAllString(row, -1); len(matches) > 0 {
		if a, err := statement.ParseAmount(matches[len(matches)-1]); err == nil {
			item.Amount = &a
		}
	}

	dates := dateRegex.FindAllString(row, -1)
	pick := -1
	switch {
	case len(dates) >= 2 && paid && strings.Contains(folded, "ODEDI"):
		pick = 1
	case len(dates) >= 1:
		pick = 0
	}
	if pick >= 0 {
		if d, err := time.Parse("02.01.2006", dates[pick]); err == nil {
			item.Date = &d
		}
	}
	return item, true
}

// Raw holds screen rows grouped by the panel they were read from.
type Raw struct {
	Owed []string `json:"owed"`
	Paid []string `json:"paid"`
}

// Build sorts parsed rows into the four snapshot lists. Installment rows
// are routed by category regardless of the panel they came from.
func Build(raw Raw) *model.AccountSnapshot {
	snap := &model.AccountSnapshot{}
	for _, row := range raw.Owed {
		if it, ok := ParseRow(row, false); ok {
			if it.Category == model.CategoryInstallment {
				snap.OwedInstallments = append(snap.OwedInstallments, it)
			} else {
				snap.OwedFees = append(snap.OwedFees, it)
			}
		}
	}
	for _, row := range raw.Paid {
		if it, ok := ParseRow(row, true); ok {
			if it.Category == model.CategoryInstallment {
				snap.PaidInstallments = append(snap.PaidInstallments, it)
			} else {
				snap.PaidFees = append(snap.PaidFees, it)
			}
		}
	}
	return snap
}
