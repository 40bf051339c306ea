package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type twilioFake struct {
	t        *testing.T
	bodies   []string
	statuses []int
	mu       sync.Mutex
}

func (f *twilioFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != "AC123" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":20003,"message":"Authenticate"}`)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/media/ME1":
		w.Header().Set("Content-Type", "application/vnd.ms-excel")
		_, _ = io.WriteString(w, "statement-bytes")
		return
	case r.Method != http.MethodPost || r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json":
		w.WriteHeader(http.StatusNotFound)
		return
	}

	require.NoError(f.t, r.ParseForm())
	assert.Equal(f.t, "whatsapp:+14155238886", r.PostForm.Get("From"))
	assert.Equal(f.t, "whatsapp:+905551112233", r.PostForm.Get("To"))

	status := http.StatusCreated
	if len(f.statuses) > 0 {
		status, f.statuses = f.statuses[0], f.statuses[1:]
	}
	f.bodies = append(f.bodies, r.PostForm.Get("Body"))
	w.WriteHeader(status)
	if status >= 400 {
		_, _ = io.WriteString(w, `{"code":21211,"message":"Invalid 'To' Phone Number"}`)
		return
	}
	_, _ = io.WriteString(w, `{"sid":"SM1"}`)
}

func newTestTwilio(t *testing.T, fake *twilioFake, token string) (*Twilio, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tw, err := New(Config{
		AccountSID: "AC123",
		AuthToken:  token,
		From:       "+14155238886",
		To:         "whatsapp:+905551112233",
		BaseURL:    srv.URL,
		Retry:      common.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return tw, srv
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		want string
		cfg  Config
	}{
		{name: "no sid", cfg: Config{AuthToken: "x", From: "a", To: "b"}, want: "account_sid"},
		{name: "no token", cfg: Config{AccountSID: "x", From: "a", To: "b"}, want: "auth_token"},
		{name: "no from", cfg: Config{AccountSID: "x", AuthToken: "x", To: "b"}, want: "twilio.from"},
		{name: "no to", cfg: Config{AccountSID: "x", AuthToken: "x", From: "a"}, want: "twilio.to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			require.ErrorIs(t, err, common.ErrMissingConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNotify(t *testing.T) {
	fake := &twilioFake{t: t}
	tw, _ := newTestTwilio(t, fake, "secret")

	require.NoError(t, tw.Notify(context.Background(), "Dosya alındı"))
	require.Len(t, fake.bodies, 1)
	assert.Equal(t, "Dosya alındı", fake.bodies[0])
}

func TestNotify_TruncatesLongBodies(t *testing.T) {
	fake := &twilioFake{t: t}
	tw, _ := newTestTwilio(t, fake, "secret")

	require.NoError(t, tw.Notify(context.Background(), strings.Repeat("ş", MaxBodyLen+50)))
	require.Len(t, fake.bodies, 1)
	assert.Len(t, []rune(fake.bodies[0]), MaxBodyLen)
	assert.True(t, strings.HasSuffix(fake.bodies[0], "..."))
}

func TestNotify_RetriesServerErrors(t *testing.T) {
	fake := &twilioFake{t: t, statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusCreated}}
	tw, _ := newTestTwilio(t, fake, "secret")

	require.NoError(t, tw.Notify(context.Background(), "merhaba"))
	assert.Len(t, fake.bodies, 3)
}

func TestNotify_ClientErrorIsPermanent(t *testing.T) {
	fake := &twilioFake{t: t, statuses: []int{http.StatusBadRequest}}
	tw, _ := newTestTwilio(t, fake, "secret")

	err := tw.Notify(context.Background(), "merhaba")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	assert.Len(t, fake.bodies, 1)
}

func TestNotify_BadCredentials(t *testing.T) {
	fake := &twilioFake{t: t}
	tw, _ := newTestTwilio(t, fake, "wrong")

	err := tw.Notify(context.Background(), "merhaba")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Empty(t, fake.bodies)
}

func TestDownloadMedia(t *testing.T) {
	fake := &twilioFake{t: t}
	tw, srv := newTestTwilio(t, fake, "secret")

	data, contentType, err := tw.DownloadMedia(context.Background(), srv.URL+"/media/ME1")
	require.NoError(t, err)
	assert.Equal(t, "statement-bytes", string(data))
	assert.Equal(t, "application/vnd.ms-excel", contentType)

	_, _, err = tw.DownloadMedia(context.Background(), srv.URL+"/media/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLogNotifier(t *testing.T) {
	var buf strings.Builder
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Contains(t, buf.String(), "hello")
}
