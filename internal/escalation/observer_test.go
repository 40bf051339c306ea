package escalation

import (
	"testing"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagNotifier(t *testing.T) {
	notifier := &testutil.FakeNotifier{}
	obs := NewFlagNotifier(notifier, nil)

	practical := model.CategoryPracticalExamFee
	txn := model.Transaction{Row: 4, Description: "HAVALE 4000", Amount: testutil.Dec(4000)}
	obs.RowStarted(0, 1, txn)
	obs.RowFinished(0, 1, txn, []model.SettlementRecord{
		{Row: 4, Amount: testutil.Dec(4000), Disposition: model.DispositionFlagAmbiguous},
		{Row: 4, Name: "AYSE", Category: &practical, Amount: testutil.Dec(1600), Disposition: model.DispositionOwed},
		{Row: 4, Amount: testutil.Dec(4000), Disposition: model.DispositionError, Note: "gateway down"},
	})

	sent := notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "🚩 Satır 5 | BULUNAMADI | 4000 TL | HAVALE 4000", sent[0])
	assert.Equal(t, "❌ Satır 5 (4000 TL) işlenemedi: gateway down", sent[1])
}
