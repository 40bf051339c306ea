package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("KASA_TEST_DIR", "/srv/kasa")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/kasa.db", want: filepath.Join(home, "kasa.db")},
		{in: "$KASA_TEST_DIR/kasa.db", want: "/srv/kasa/kasa.db"},
		{in: "/abs/path", want: "/abs/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestSetDefaults(t *testing.T) {
	v := newViper()
	assert.Equal(t, ":3987", v.GetString("server.addr"))
	assert.Equal(t, "sqlite", v.GetString("status.backend"))
	assert.Equal(t, "hesaphareketleri", Statement(v).Sheet)
	assert.Equal(t, "Para Transferi", Statement(v).TransferTag)
	assert.Empty(t, string(StatementFormat(v)))
	assert.Equal(t, 30*time.Second, LLM(v).Timeout)
	assert.Equal(t, 3*time.Minute, Gateway(v).Timeout)
	assert.False(t, TwilioConfigured(v))

	v.Set("statement.format", "csv")
	assert.Equal(t, "csv", string(StatementFormat(v)))
	v.Set("twilio.account_sid", "AC1")
	assert.True(t, TwilioConfigured(v))
	assert.Equal(t, "AC1", Twilio(v).AccountSID)
}

func TestFeeSchedule(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		fees, err := FeeSchedule(newViper())
		require.NoError(t, err)
		assert.True(t, fees.DocumentFee.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("overrides", func(t *testing.T) {
		v := newViper()
		v.Set("fees.practical_exam", []any{1800, 1500})
		v.Set("fees.document", "1100")
		fees, err := FeeSchedule(v)
		require.NoError(t, err)
		require.Len(t, fees.PracticalExam, 2)
		assert.True(t, fees.PracticalExam[0].Equal(decimal.NewFromInt(1800)))
		assert.True(t, fees.DocumentFee.Equal(decimal.NewFromInt(1100)))
	})

	t.Run("bad value", func(t *testing.T) {
		v := newViper()
		v.Set("fees.document", "bin")
		_, err := FeeSchedule(v)
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})

	t.Run("empty band", func(t *testing.T) {
		v := newViper()
		v.Set("fees.installment_min", "4000")
		_, err := FeeSchedule(v)
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestLoadSheetsConfig(t *testing.T) {
	for _, env := range []string{
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "GOOGLE_SHEETS_CLIENT_ID", "GOOGLE_SHEETS_CLIENT_SECRET",
		"GOOGLE_SHEETS_REFRESH_TOKEN", "GOOGLE_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEETS_SPREADSHEET_NAME",
	} {
		t.Setenv(env, "")
	}

	t.Run("oauth from viper with token file", func(t *testing.T) {
		v := newViper()
		v.Set("sheets.client_id", "id")
		v.Set("sheets.client_secret", "secret")
		v.Set("sheets.token_file", "/tmp/token.json")
		cfg, err := LoadSheetsConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/token.json", cfg.TokenFile)
		assert.Equal(t, "Kasa Defteri", cfg.SpreadsheetName)
	})

	t.Run("service account from env", func(t *testing.T) {
		t.Setenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH", "/keys/sa.json")
		t.Setenv("GOOGLE_SHEETS_SPREADSHEET_NAME", "Defter 2025")
		cfg, err := LoadSheetsConfig(newViper())
		require.NoError(t, err)
		assert.Equal(t, "/keys/sa.json", cfg.ServiceAccountPath)
		assert.Empty(t, cfg.TokenFile)
		assert.Equal(t, "Defter 2025", cfg.SpreadsheetName)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSheetsConfig(newViper())
		assert.Error(t, err)
	})
}
