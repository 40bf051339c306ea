package main

import (
	"testing"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResume(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", in: "", wantNil: true},
		{name: "blank", in: "   ", wantNil: true},
		{name: "turkish", in: "12.345,67", want: "12345.67"},
		{name: "english", in: "12,345.67", want: "12345.67"},
		{name: "plain", in: "8000", want: "8000"},
		{name: "garbage", in: "bakiye", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResume(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestRootCommands(t *testing.T) {
	want := []string{"run", "classify", "resolve", "log", "status", "watch", "serve", "export", "auth", "migrate", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	clearCmd, _, err := rootCmd.Find([]string{"log", "clear"})
	require.NoError(t, err)
	assert.Equal(t, "clear", clearCmd.Name())
	assert.NotNil(t, clearCmd.Flags().Lookup("no-archive"))
}

func TestPendingRecords(t *testing.T) {
	records := []model.SettlementRecord{
		{ID: 1, Disposition: model.DispositionOwed},
		{ID: 2, Disposition: model.DispositionFlagPOS},
		{ID: 3, Disposition: model.DispositionError},
		{ID: 4, Disposition: model.DispositionFlagNameNotFound},
	}
	got := pendingRecords(records)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Equal(t, int64(4), got[2].ID)
}

func TestLastBalance(t *testing.T) {
	var l lastBalance
	assert.Nil(t, l.get())

	b := decimal.NewFromInt(15000)
	l.RowFinished(0, 2, model.Transaction{Balance: &b}, nil)
	l.RowFinished(1, 2, model.Transaction{}, nil)

	require.NotNil(t, l.get())
	assert.True(t, l.get().Equal(b))
}
