package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/escalation"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/storage"
	"github.com/Veraticus/kasa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRuns struct {
	active  *engine.RunHandle
	started []engine.RunOptions
	rows    []int
	stopped int
	mu      sync.Mutex
}

func (f *fakeRuns) Start(_ context.Context, txns []model.Transaction, opts engine.RunOptions) (*engine.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil {
		return nil, common.ErrRunActive
	}
	f.started = append(f.started, opts)
	f.rows = append(f.rows, len(txns))
	return &engine.RunHandle{ID: "run-42"}, nil
}

func (f *fakeRuns) Stop(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	wasActive := f.active != nil
	f.active = nil
	return wasActive, nil
}

func (f *fakeRuns) Active() *engine.RunHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeEscalator struct {
	err      error
	out      *escalation.Outcome
	messages []string
	mu       sync.Mutex
}

func (f *fakeEscalator) Resolve(_ context.Context, message string) (*escalation.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.out, f.err
}

type fakeMedia struct {
	err         error
	data        []byte
	contentType string
	urls        []string
}

func (f *fakeMedia) DownloadMedia(_ context.Context, mediaURL string) ([]byte, string, error) {
	f.urls = append(f.urls, mediaURL)
	return f.data, f.contentType, f.err
}

type testServer struct {
	srv       *Server
	handler   http.Handler
	runs      *fakeRuns
	escalator *fakeEscalator
	media     *fakeMedia
	notifier  *testutil.FakeNotifier
	store     *storage.SQLiteStorage
	uploads   string
	loaded    []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		runs:      &fakeRuns{},
		escalator: &fakeEscalator{out: &escalation.Outcome{Kind: escalation.KindNothingPending, Reply: "hepsi tamam"}},
		media:     &fakeMedia{data: []byte("a;b"), contentType: "text/csv"},
		notifier:  &testutil.FakeNotifier{},
		store:     testutil.SetupTestDB(t),
		uploads:   t.TempDir(),
	}
	srv, err := New(Config{UploadsDir: ts.uploads, RunOptions: engine.RunOptions{EnterUnowed: true}}, Deps{
		Runs:      ts.runs,
		Escalator: ts.escalator,
		Media:     ts.media,
		Log:       ts.store,
		Status:    ts.store,
		Notifier:  ts.notifier,
		Statements: func(_ context.Context, path string) ([]model.Transaction, error) {
			ts.loaded = append(ts.loaded, path)
			return []model.Transaction{testutil.Transfer(0, "Ayse Demir", 1600, testutil.Day(2025, time.March, 1))}, nil
		},
	}, quietLog)
	require.NoError(t, err)
	ts.srv = srv
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func webhook(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/reply_whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{}, quietLog)
	require.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200 OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc")
	assert.Equal(t, "abc", ts.do(req).Header().Get("X-Request-Id"))
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	practical := model.CategoryPracticalExamFee

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current":null,"records":[],"pending":0}`, rec.Body.String())

	require.NoError(t, ts.store.AppendRecord(ctx, &model.SettlementRecord{
		RunID: "run-1", Name: "Ayse Demir", Category: &practical, Disposition: model.DispositionOwed, Amount: testutil.Dec(1600),
	}))
	require.NoError(t, ts.store.AppendRecord(ctx, &model.SettlementRecord{
		RunID: "run-1", Disposition: model.DispositionFlagPOS, Amount: testutil.Dec(900),
	}))
	require.NoError(t, ts.store.SetStatus(ctx, model.ProcessingStatus{
		Name: "Ayse Demir", Stage: model.StageProcessing, Category: practical, Amount: testutil.Dec(1600),
	}))
	ts.runs.active = &engine.RunHandle{ID: "run-1"}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "UYGULAMA SINAV HARCI", resp.Records[0].Label)
	assert.Equal(t, "1600", resp.Records[0].Amount)
	assert.Equal(t, "FLAG_POS", resp.Records[1].Disposition)
	assert.Equal(t, 1, resp.Pending)
	assert.Equal(t, "run-1", resp.ActiveRun)
	require.NotNil(t, resp.Current)
	assert.Equal(t, "processing", resp.Current.Stage)
	assert.Equal(t, "Ayse Demir", resp.Current.Name)
}

func TestUploadAndStart(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no statement uploaded")

	rec = ts.do(multipartUpload(t, "ekstre.pdf", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, ts.store.AppendRecord(ctx, &model.SettlementRecord{
		RunID: "old", Disposition: model.DispositionFlagPOS, Amount: testutil.Dec(900),
	}))
	require.NoError(t, os.WriteFile(filepath.Join(ts.uploads, "previous.csv"), []byte("old"), 0600))

	rec = ts.do(multipartUpload(t, "../../ekstre.csv", "Tarih;Tutar"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := filepath.Join(ts.uploads, "ekstre.csv")
	assert.FileExists(t, saved)
	assert.NoFileExists(t, filepath.Join(ts.uploads, "previous.csv"))

	records, err := ts.store.ListRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, records, "upload starts a fresh settlement log")

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"resume_balance":"12.500,40"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "run-42", resp.RunID)
	assert.Contains(t, resp.Message, "resuming")

	assert.Equal(t, []string{saved}, ts.loaded)
	require.Len(t, ts.runs.started, 1)
	assert.True(t, ts.runs.started[0].EnterUnowed)
	require.NotNil(t, ts.runs.started[0].ResumeBalance)
	assert.Equal(t, "12500.4", ts.runs.started[0].ResumeBalance.String())
}

func TestStart_Errors(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.uploads, "ekstre.csv"), []byte("x"), 0600))

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"resume_balance":"abc"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.runs.active = &engine.RunHandle{ID: "busy"}
	rec = ts.do(httptest.NewRequest(http.MethodPost, "/start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, ts.runs.started)
}

func TestStop(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "state reset")

	ts.runs.active = &engine.RunHandle{ID: "run-1"}
	rec = ts.do(httptest.NewRequest(http.MethodPost, "/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run stopped")
	assert.Equal(t, 2, ts.runs.stopped)
}

func TestWhatsApp_TextReply(t *testing.T) {
	tests := []struct {
		err      error
		out      *escalation.Outcome
		name     string
		wantSent []string
	}{
		{
			name:     "unresolved outcome is relayed",
			out:      &escalation.Outcome{Kind: escalation.KindUnresolved, Reply: "ödeme türü?"},
			wantSent: []string{"ödeme türü?"},
		},
		{
			name: "resolved outcome was already announced",
			out:  &escalation.Outcome{Kind: escalation.KindResolved, Reply: "✅"},
		},
		{
			name:     "failure is reported",
			err:      common.NewUserError("Golden'a ulaşılamadı", errors.New("timeout")),
			wantSent: []string{"İşlem sırasında hata oluştu: Golden'a ulaşılamadı"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.escalator.out, ts.escalator.err = tt.out, tt.err

			rec := ts.do(webhook(url.Values{"Body": {"Ayse Demir özel ders"}, "NumMedia": {"0"}, "From": {"whatsapp:+90555"}}))
			ts.srv.Wait()

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), "<Message>"+escalation.ProcessingReply+"</Message>")
			assert.Equal(t, []string{"Ayse Demir özel ders"}, ts.escalator.messages)
			if tt.wantSent == nil {
				assert.Empty(t, ts.notifier.Sent())
			} else {
				assert.Equal(t, tt.wantSent, ts.notifier.Sent())
			}
		})
	}
}

func TestWhatsApp_EmptyBodyIsIgnored(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(webhook(url.Values{"Body": {"  "}}))
	ts.srv.Wait()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.escalator.messages)
}

func TestWhatsApp_StatementUpload(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.AppendRecord(ctx, &model.SettlementRecord{
		RunID: "old", Disposition: model.DispositionFlagPOS, Amount: testutil.Dec(900),
	}))

	rec := ts.do(webhook(url.Values{
		"NumMedia":          {"1"},
		"MediaUrl0":         {"https://api.twilio.com/2010-04-01/Accounts/AC1/Messages/MM1/Media/ME77"},
		"MediaContentType0": {"text/csv"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Message>"+escalation.StartedReply+"</Message>")

	saved := filepath.Join(ts.uploads, "ME77.csv")
	assert.FileExists(t, saved)
	assert.Equal(t, []string{saved}, ts.loaded)
	require.Len(t, ts.runs.started, 1)
	assert.Nil(t, ts.runs.started[0].ResumeBalance)

	pending, err := ts.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestWhatsApp_StatementRejected(t *testing.T) {
	tests := []struct {
		setup       func(ts *testServer)
		name        string
		contentType string
		want        string
	}{
		{
			name:        "run in progress",
			contentType: "text/csv",
			setup:       func(ts *testServer) { ts.runs.active = &engine.RunHandle{ID: "busy"} },
			want:        replyBusy,
		},
		{
			name:        "unsupported type",
			contentType: "image/jpeg",
			want:        replyBadFile,
		},
		{
			name:        "download failure",
			contentType: "text/csv",
			setup:       func(ts *testServer) { ts.media.err = errors.New("403") },
			want:        replyDownloadFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts)
			}
			rec := ts.do(webhook(url.Values{
				"NumMedia":          {"1"},
				"MediaUrl0":         {"https://example.test/Media/ME1"},
				"MediaContentType0": {tt.contentType},
			}))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, ts.runs.started)
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	ts := newTestServer(t)
	h := ts.srv.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
