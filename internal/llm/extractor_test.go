package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chatServer replies with the given contents in order, repeating the last.
func chatServer(t *testing.T, statuses []int, contents ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)

		if n < len(statuses) && statuses[n] != http.StatusOK {
			w.WriteHeader(statuses[n])
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		idx := n - len(statuses)
		if idx < 0 {
			idx = n
		}
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": contents[idx]}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestExtractor(t *testing.T, baseURL string) *Extractor {
	t.Helper()
	ex, err := NewExtractor(Config{
		Provider:   "openrouter",
		APIKey:     "test-key",
		BaseURL:    baseURL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		RateLimit:  6000,
	}, testLogger())
	require.NoError(t, err)
	return ex
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{Provider: "anthropic", APIKey: "k"})
	require.ErrorIs(t, err, common.ErrInvalidConfig)

	_, err = NewClient(Config{Provider: "openai"})
	require.ErrorIs(t, err, common.ErrMissingConfig)

	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	cc, ok := c.(*chatClient)
	require.True(t, ok)
	assert.Equal(t, OpenRouterBaseURL+"/chat/completions", cc.endpoint)
}

func TestExtractNames(t *testing.T) {
	srv, calls := chatServer(t, nil, "```json\n[\"Ayse Demir\", \"ayse  demir\", \"\"]\n```")
	ex := newTestExtractor(t, srv.URL)
	ctx := context.Background()

	names, err := ex.ExtractNames(ctx, "AYSE DEMIR KURS ODEMESI", "MEHMET DEMIR")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ayse Demir"}, names)

	names, err = ex.ExtractNames(ctx, "AYSE DEMIR KURS ODEMESI", "MEHMET DEMIR")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ayse Demir"}, names)
	assert.Equal(t, int32(1), calls.Load(), "second lookup should hit the cache")
}

func TestExtractNames_Malformed(t *testing.T) {
	srv, _ := chatServer(t, nil, "I could not find any names, sorry.")
	ex := newTestExtractor(t, srv.URL)

	_, err := ex.ExtractNames(context.Background(), "info", "sender")
	require.ErrorIs(t, err, common.ErrExtractionMalformed)
}

func TestExtract_RetriesServerErrors(t *testing.T) {
	srv, calls := chatServer(t, []int{http.StatusInternalServerError, http.StatusBadGateway}, `["Ali Veli"]`)
	ex := newTestExtractor(t, srv.URL)

	names, err := ex.ExtractNames(context.Background(), "ALI VELI", "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ali Veli"}, names)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExtract_ClientErrorIsPermanent(t *testing.T) {
	srv, calls := chatServer(t, []int{http.StatusUnauthorized}, `[]`)
	ex := newTestExtractor(t, srv.URL)

	_, err := ex.ExtractNames(context.Background(), "ALI VELI", "X")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrMaxRetries)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractIntent(t *testing.T) {
	tests := []struct {
		wantCat  *model.Category
		name     string
		content  string
		wantName string
		noInfo   bool
	}{
		{
			name:     "name and category label",
			content:  `{"name": "Ali Veli", "payment_type": "ÖZEL DERS"}`,
			wantName: "Ali Veli",
			wantCat:  ptr(model.CategoryPrivateLesson),
		},
		{
			name:     "null strings",
			content:  `{"name": "null", "payment_type": null}`,
			wantName: "",
		},
		{
			name:    "no information",
			content: `{"no_information": "greeting only"}`,
			noInfo:  true,
		},
		{
			name:     "unknown category ignored",
			content:  `{"name": "Ali Veli", "payment_type": "BENZIN"}`,
			wantName: "Ali Veli",
		},
		{
			name:     "placeholder category ignored",
			content:  `{"name": "Ali Veli", "payment_type": "DORTBIN"}`,
			wantName: "Ali Veli",
		},
		{
			name:    "malformed is empty",
			content: `sure! the name is Ali`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := chatServer(t, nil, tt.content)
			ex := newTestExtractor(t, srv.URL)

			intent, err := ex.ExtractIntent(context.Background(), "Ali Veli ozel ders")
			require.NoError(t, err)
			assert.Equal(t, tt.noInfo, intent.NoInformation)
			assert.Equal(t, tt.wantName, intent.Name)
			assert.Equal(t, tt.wantCat, intent.Category)
		})
	}
}

func TestExtractIntent_TransportError(t *testing.T) {
	srv, _ := chatServer(t, []int{http.StatusForbidden}, `{}`)
	ex := newTestExtractor(t, srv.URL)

	_, err := ex.ExtractIntent(context.Background(), "x")
	require.Error(t, err)
}

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```":   `{"a":1}`,
		"Here you go: [\"x\"] done": `["x"]`,
		"  {\"a\":{\"b\":2}}  ":      `{"a":{"b":2}}`,
		"plain":                     "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanMarkdownWrapper(in), in)
	}
}

func TestIntentSystemPrompt_ListsActionableLabels(t *testing.T) {
	p := intentSystemPrompt()
	assert.Contains(t, p, "YAZILI SINAV HARCI")
	assert.Contains(t, p, "TAKSİT")
	assert.NotContains(t, p, "DORTBIN")
}

func ptr[T any](v T) *T { return &v }
