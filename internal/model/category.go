// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"

	"github.com/Veraticus/kasa/internal/common"
)

// Category is a payment category on the student ledger.
type Category string

// Payment categories.
const (
	CategoryWrittenExamFee          Category = "WRITTEN_EXAM_FEE"
	CategoryPracticalExamFee        Category = "PRACTICAL_EXAM_FEE"
	CategoryPrivateLesson           Category = "PRIVATE_LESSON"
	CategoryFailedCandidateTraining Category = "FAILED_CANDIDATE_TRAINING"
	CategoryDocumentFee             Category = "DOCUMENT_FEE"
	CategoryInstallment             Category = "INSTALLMENT"
	CategoryAmbiguous4000           Category = "AMBIGUOUS_4000"
	CategoryUnknown                 Category = "UNKNOWN"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryWrittenExamFee,
	CategoryPracticalExamFee,
	CategoryPrivateLesson,
	CategoryFailedCandidateTraining,
	CategoryDocumentFee,
	CategoryInstallment,
	CategoryAmbiguous4000,
	CategoryUnknown,
}

// labels are the dropdown texts used by the external ledger.
var labels = map[Category]string{
	CategoryWrittenExamFee:          "YAZILI SINAV HARCI",
	CategoryPracticalExamFee:        "UYGULAMA SINAV HARCI",
	CategoryPrivateLesson:           "ÖZEL DERS",
	CategoryFailedCandidateTraining: "BAŞARISIZ ADAY EĞİTİMİ",
	CategoryDocumentFee:             "BELGE ÜCRETİ",
	CategoryInstallment:             "TAKSİT",
	CategoryAmbiguous4000:           "DORTBIN",
	CategoryUnknown:                 "BILINMIYOR",
}

// Label returns the external ledger label for the category.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := labels[c]
	return ok
}

// Actionable reports whether a settlement can be entered for c. The
// ambiguous and unknown placeholders must be resolved first.
func (c Category) Actionable() bool {
	return c.Valid() && c != CategoryAmbiguous4000 && c != CategoryUnknown
}

// IsFee reports whether c is a fixed-price fee rather than an installment.
func (c Category) IsFee() bool {
	switch c {
	case CategoryWrittenExamFee, CategoryPracticalExamFee, CategoryPrivateLesson,
		CategoryFailedCandidateTraining, CategoryDocumentFee:
		return true
	default:
		return false
	}
}

// ParseCategory accepts a category code or its ledger label in any case,
// with or without Turkish diacritics.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	folded := common.Fold(s)
	for _, c := range Categories {
		if folded == common.Fold(string(c)) || folded == common.Fold(c.Label()) {
			return c, true
		}
		if folded == strings.ReplaceAll(string(c), "_", " ") {
			return c, true
		}
	}
	return "", false
}
