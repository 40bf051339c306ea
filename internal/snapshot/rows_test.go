package snapshot

import (
	"testing"
	"time"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	tests := []struct {
		wantDate *time.Time
		name     string
		row      string
		wantCat  model.Category
		wantAmt  string
		paid     bool
		wantOK   bool
	}{
		{
			name:    "owed practical fee",
			row:     "UYG.SNV.HARCI 05.03.2025 1.600,00 BORÇ VAR",
			wantCat: model.CategoryPracticalExamFee,
			wantAmt: "1600",
			wantOK:  true,
		},
		{
			name:    "installment abbreviation",
			row:     "TKST 3 01.04.2025 2.500,00",
			wantCat: model.CategoryInstallment,
			wantAmt: "2500",
			wantOK:  true,
		},
		{
			name:     "paid row uses payment date",
			row:      "TAKSİT 01.03.2025 ÖDEDİ 12.03.2025 2.500,00 YAZDIR",
			paid:     true,
			wantCat:  model.CategoryInstallment,
			wantAmt:  "2500",
			wantDate: ptr(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)),
			wantOK:   true,
		},
		{
			name:    "failed candidate training",
			row:     "BAŞARISIZ ADAY EĞİTİMİ 4.000,00",
			wantCat: model.CategoryFailedCandidateTraining,
			wantAmt: "4000",
			wantOK:  true,
		},
		{
			name:    "private lesson",
			row:     "ÖZEL DERS 10.02.2025 4.000,00",
			wantCat: model.CategoryPrivateLesson,
			wantAmt: "4000",
			wantOK:  true,
		},
		{
			name:    "document fee",
			row:     "BELGE ÜCRETİ 1.000,00",
			wantCat: model.CategoryDocumentFee,
			wantAmt: "1000",
			wantOK:  true,
		},
		{
			name:    "written exam",
			row:     "YZL SNV HARCI 1.200,00",
			wantCat: model.CategoryWrittenExamFee,
			wantAmt: "1200",
			wantOK:  true,
		},
		{
			name: "header row",
			row:  "BORÇ TİPİ VADE TARİHİ TUTAR DURUMU",
		},
		{
			name: "unrecognised row",
			row:  "KIRA 1.000,00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRow(tt.row, tt.paid)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantCat, got.Category)
			assert.Equal(t, tt.paid, got.Settled)
			require.NotNil(t, got.Amount)
			assert.True(t, decimal.RequireFromString(tt.wantAmt).Equal(*got.Amount))
			if tt.wantDate != nil {
				require.NotNil(t, got.Date)
				assert.True(t, tt.wantDate.Equal(*got.Date))
			}
		})
	}
}

func TestBuild(t *testing.T) {
	snap := Build(Raw{
		Owed: []string{
			"BORÇ TİPİ VADE TUTAR DURUMU",
			"UYG.SNV.HARCI 1.600,00",
			"TAKSİT 2 01.04.2025 2.500,00",
		},
		Paid: []string{
			"BELGE ÜCRETİ 01.02.2025 1.000,00",
			"TAKSİT 1 01.03.2025 ÖDEDİ 02.03.2025 2.500,00",
		},
	})

	require.Len(t, snap.OwedFees, 1)
	require.Len(t, snap.OwedInstallments, 1)
	require.Len(t, snap.PaidFees, 1)
	require.Len(t, snap.PaidInstallments, 1)
	assert.Equal(t, model.CategoryPracticalExamFee, snap.OwedFees[0].Category)
	assert.Equal(t, model.CategoryDocumentFee, snap.PaidFees[0].Category)
	assert.Equal(t, 2, snap.PaidInstallments[0].Date.Day())
}

func ptr[T any](v T) *T { return &v }
