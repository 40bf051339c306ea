// Package notify delivers operator messages over WhatsApp through the
// Twilio REST API.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/service"
)

// DefaultBaseURL is the Twilio REST endpoint.
const DefaultBaseURL = "https://api.twilio.com"

// MaxBodyLen is the longest message body Twilio accepts, in characters.
const MaxBodyLen = 1600

// maxMediaSize bounds statement downloads.
const maxMediaSize = 20 << 20

// Config holds Twilio credentials and the fixed recipient.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
	Timeout    time.Duration
	Retry      common.RetryOptions
}

// Twilio implements service.Notifier.
type Twilio struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	accountSID string
	authToken  string
	from       string
	to         string
	retry      common.RetryOptions
}

var _ service.Notifier = (*Twilio)(nil)

// New creates a Twilio notifier.
func New(cfg Config, logger *slog.Logger) (*Twilio, error) {
	switch {
	case cfg.AccountSID == "":
		return nil, fmt.Errorf("%w: twilio.account_sid", common.ErrMissingConfig)
	case cfg.AuthToken == "":
		return nil, fmt.Errorf("%w: twilio.auth_token", common.ErrMissingConfig)
	case cfg.From == "":
		return nil, fmt.Errorf("%w: twilio.from", common.ErrMissingConfig)
	case cfg.To == "":
		return nil, fmt.Errorf("%w: twilio.to", common.ErrMissingConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = common.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	}

	return &Twilio{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    strings.TrimSuffix(base, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       whatsapp(cfg.From),
		to:         whatsapp(cfg.To),
		retry:      retry,
	}, nil
}

// whatsapp adds the channel prefix Twilio expects on WhatsApp numbers.
func whatsapp(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Notify sends body to the configured recipient, truncated to MaxBodyLen.
func (t *Twilio) Notify(ctx context.Context, body string) error {
	body = common.Truncate(body, MaxBodyLen)
	form := url.Values{
		"From": {t.from},
		"To":   {t.to},
		"Body": {body},
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))

	err := common.WithRetry(ctx, func() error {
		return t.send(ctx, endpoint, form)
	}, t.retry)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	t.logger.Debug("Message sent", "to", t.to, "length", len([]rune(body)))
	return nil
}

func (t *Twilio) send(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return common.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var apiErr apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr != nil || apiErr.Message == "" {
		apiErr.Message = common.Truncate(strings.TrimSpace(string(raw)), 200)
	}
	err = fmt.Errorf("twilio returned status %d (code %d): %s", resp.StatusCode, apiErr.Code, apiErr.Message)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case resp.StatusCode >= 500:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return common.Permanent(err)
	}
}

// ErrMediaTooLarge is returned for downloads over the size limit.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// DownloadMedia fetches a webhook media attachment. Twilio media URLs need
// the account credentials.
func (t *Twilio) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}
	if len(data) > maxMediaSize {
		return nil, "", ErrMediaTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}
