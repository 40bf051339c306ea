package sheets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var generated = time.Date(2025, 3, 4, 18, 30, 0, 0, time.UTC)

func sampleRecords() []model.SettlementRecord {
	practical := model.CategoryPracticalExamFee
	doc := model.CategoryDocumentFee
	inst := model.CategoryInstallment
	resolved := generated.Add(time.Hour)
	return []model.SettlementRecord{
		{ID: 1, RunID: "r1", Row: 0, Name: "AYSE YILMAZ", Category: &practical, Amount: decimal.NewFromInt(1600), Disposition: model.DispositionOwed, CreatedAt: generated},
		{ID: 2, RunID: "r1", Row: 1, Name: "MEHMET DEMIR", Category: &doc, Amount: decimal.NewFromInt(1000), Disposition: model.DispositionOwed, CreatedAt: generated},
		{ID: 3, RunID: "r1", Row: 1, Name: "MEHMET DEMIR", Category: &inst, Amount: decimal.NewFromInt(2000), Disposition: model.DispositionPaid, CreatedAt: generated, ResolvedAt: &resolved},
		{ID: 4, RunID: "r1", Row: 2, Amount: decimal.NewFromInt(4000), Disposition: model.DispositionFlagAmbiguous, Note: "HAVALE", CreatedAt: generated},
	}
}

func TestConfig_Validate(t *testing.T) {
	oauth := Config{ClientID: "id", ClientSecret: "secret", RefreshToken: "tok", BatchSize: 100, RetryAttempts: 3, RetryDelay: time.Second}
	tests := []struct {
		mutate  func(c *Config)
		name    string
		errMsg  string
		wantErr bool
	}{
		{name: "valid oauth config", mutate: func(*Config) {}},
		{name: "token file instead of refresh token", mutate: func(c *Config) { c.RefreshToken = ""; c.TokenFile = "/tmp/token.json" }},
		{name: "valid service account", mutate: func(c *Config) { *c = Config{ServiceAccountPath: "/key.json", BatchSize: 1} }},
		{name: "partial oauth", mutate: func(c *Config) { c.ClientSecret = "" }, wantErr: true, errMsg: "no authentication method configured"},
		{name: "both methods", mutate: func(c *Config) { c.ServiceAccountPath = "/key.json" }, wantErr: true, errMsg: "multiple authentication methods"},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true, errMsg: "batch size must be positive"},
		{name: "negative retries", mutate: func(c *Config) { c.RetryAttempts = -1 }, wantErr: true, errMsg: "retry attempts cannot be negative"},
		{name: "negative delay", mutate: func(c *Config) { c.RetryDelay = -time.Second }, wantErr: true, errMsg: "retry delay cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := oauth
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuildReport(t *testing.T) {
	r := BuildReport("Kasa Defteri", sampleRecords(), generated)

	assert.Len(t, r.Records, 4)
	assert.Equal(t, 1, r.Pending)
	assert.True(t, r.Settled.Equal(decimal.NewFromInt(4600)), r.Settled.String())

	require.Len(t, r.ByDisposition, 3)
	assert.Equal(t, "FLAG_AMBIGUOUS_AMOUNT", r.ByDisposition[0].Disposition)
	assert.Equal(t, "OWED", r.ByDisposition[1].Disposition)
	assert.Equal(t, 2, r.ByDisposition[1].Count)
	assert.True(t, r.ByDisposition[1].Total.Equal(decimal.NewFromInt(2600)))

	require.Len(t, r.ByCategory, 3)
	assert.Equal(t, model.CategoryInstallment.Label(), r.ByCategory[0].Category)
	assert.Equal(t, model.CategoryPracticalExamFee.Label(), r.ByCategory[1].Category)
	assert.Equal(t, "", r.Records[3].Category)
}

func TestReport_Values(t *testing.T) {
	values := BuildReport("Kasa Defteri", sampleRecords(), generated).Values()

	assert.Equal(t, []any{"Kasa Defteri", "2025-03-04 18:30"}, values[0])
	assert.Equal(t, []any{"Settled Total", 4600.0}, values[3])

	header := -1
	for i, row := range values {
		if len(row) > 0 && row[0] == "ID" {
			header = i
		}
	}
	require.NotEqual(t, -1, header)
	require.Len(t, values, header+5)

	first := values[header+1]
	assert.Equal(t, int64(1), first[0])
	assert.Equal(t, 1, first[2])
	assert.Equal(t, "AYSE YILMAZ", first[3])
	assert.Equal(t, 1600.0, first[5])
	assert.Equal(t, "", first[9])
	assert.Equal(t, "2025-03-04 19:30", values[header+3][9])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defter.xlsx")
	require.NoError(t, WriteXLSX(path, BuildReport("Kasa Defteri", sampleRecords(), generated)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	assert.Equal(t, "Kasa Defteri", rows[0][0])

	var found bool
	for _, row := range rows {
		if len(row) > 3 && row[3] == "AYSE YILMAZ" {
			found = true
			assert.Equal(t, "1600", row[5])
		}
	}
	assert.True(t, found)
}

// sheetsFake records the Sheets API calls the writer makes.
type sheetsFake struct {
	calls   []string
	written [][]any
	mu      sync.Mutex
}

func (f *sheetsFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets":
		_, _ = io.WriteString(w, `{"spreadsheetId":"new-sheet","spreadsheetUrl":"https://example/new-sheet"}`)
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/values/"):
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		for _, row := range vr.Values {
			f.written = append(f.written, row)
		}
		_, _ = io.WriteString(w, `{}`)
	default:
		_, _ = io.WriteString(w, `{"spreadsheetId":"existing"}`)
	}
}

func testWriter(t *testing.T, cfg Config) (*Writer, *sheetsFake) {
	t.Helper()
	fake := &sheetsFake{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return newWriter(svc, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), fake
}

func TestWriter_Write(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpreadsheetID = "existing"
	cfg.BatchSize = 5
	w, fake := testWriter(t, cfg)

	report := BuildReport("Kasa Defteri", sampleRecords(), generated)
	id, err := w.Write(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "existing", id)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "GET /v4/spreadsheets/existing", fake.calls[0])
	assert.Contains(t, fake.calls[1], ":clear")
	assert.Contains(t, fake.calls[len(fake.calls)-1], ":batchUpdate")

	total := len(report.Values())
	puts := 0
	for _, c := range fake.calls {
		if strings.HasPrefix(c, "PUT ") {
			puts++
		}
	}
	assert.Equal(t, (total+4)/5, puts)
	assert.Len(t, fake.written, total)
	assert.Equal(t, "Kasa Defteri", fake.written[0][0])
}

func TestWriter_CreatesSpreadsheet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFormatting = false
	w, fake := testWriter(t, cfg)

	id, err := w.Write(context.Background(), BuildReport("Kasa Defteri", nil, generated))
	require.NoError(t, err)
	assert.Equal(t, "new-sheet", id)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "POST /v4/spreadsheets", fake.calls[0])
	for _, c := range fake.calls {
		assert.NotContains(t, c, ":batchUpdate")
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: generated}
	require.NoError(t, saveToken(path, token))

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.True(t, loaded.Expiry.Equal(generated))

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRefreshTokenIfNeeded_ValidTokenUnchanged(t *testing.T) {
	token := &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}
	got, err := RefreshTokenIfNeeded(context.Background(), OAuth2Config{}, token)
	require.NoError(t, err)
	assert.Same(t, token, got)
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
		wantErr  bool
		status   int
	}{
		{name: "code received", query: "?state=s1&code=abc", wantCode: "abc", status: http.StatusOK},
		{name: "state mismatch", query: "?state=other&code=abc", status: http.StatusBadRequest},
		{name: "missing code", query: "?state=s1", wantErr: true, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := make(chan string, 1)
			errs := make(chan error, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s1", codes, errs)(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			assert.Equal(t, tt.status, rec.Code)
			select {
			case code := <-codes:
				assert.Equal(t, tt.wantCode, code)
			default:
				assert.Empty(t, tt.wantCode)
			}
			assert.Equal(t, tt.wantErr, len(errs) == 1)
		})
	}
}

func TestOAuth2Config_RedirectURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/callback", OAuth2Config{}.oauth2().RedirectURL)
	assert.Equal(t, "http://127.0.0.1:9999/callback", OAuth2Config{CallbackAddr: "127.0.0.1:9999"}.oauth2().RedirectURL)
}
