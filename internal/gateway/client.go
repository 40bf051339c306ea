// Package gateway talks to the RPA sidecar that drives the external student
// ledger. The sidecar owns the browser session and OCR; this package sees
// only its JSON contract.
package gateway

import (
	"bytes"
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
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/payer"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/snapshot"
	"github.com/Veraticus/kasa/internal/statement"
	"github.com/shopspring/decimal"
)

// Config holds the sidecar connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// ReadRetry bounds retries of snapshot reads. Settlements are never retried.
	ReadRetry common.RetryOptions
}

// Client implements service.SnapshotReader and service.SettlementAction.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
	readRetry  common.RetryOptions
}

var (
	_ service.SnapshotReader   = (*Client)(nil)
	_ service.SettlementAction = (*Client)(nil)
)

// New creates a gateway client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: gateway.base_url", common.ErrMissingConfig)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: gateway.base_url: %v", common.ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		// Sidecar calls drive a real browser session.
		timeout = 3 * time.Minute
	}
	retry := cfg.ReadRetry
	if retry.MaxAttempts == 0 {
		retry = common.RetryOptions{MaxAttempts: 2, InitialDelay: 2 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		readRetry:  retry,
	}, nil
}

// FetchSnapshot looks the student up by full name and, when that fails,
// by surname alone.
func (c *Client) FetchSnapshot(ctx context.Context, name string) (*model.AccountSnapshot, error) {
	snap, err := c.fetch(ctx, name)
	if err == nil || !errors.Is(err, common.ErrNotFound) {
		return snap, err
	}

	surname := payer.Surname(name)
	if surname == "" || payer.SameName(surname, name) {
		return nil, err
	}
	c.logger.Info("Student not found, retrying with surname",
		"name", name,
		"surname", surname)
	snap, serr := c.fetch(ctx, surname)
	if serr != nil {
		if errors.Is(serr, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: student %q", common.ErrNotFound, name)
		}
		return nil, serr
	}
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, name string) (*model.AccountSnapshot, error) {
	var doc snapshotDoc
	err := common.WithRetry(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodGet, "/students?name="+url.QueryEscape(name), nil)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		switch {
		case status == http.StatusNotFound:
			return common.Permanent(fmt.Errorf("%w: student %q", common.ErrNotFound, name))
		case status >= 500:
			return &common.RetryableError{Err: statusError(status, body), Retryable: true}
		case status != http.StatusOK:
			return common.Permanent(statusError(status, body))
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return common.Permanent(fmt.Errorf("%w: snapshot for %q: %v", common.ErrSnapshotFetchFailed, name, err))
		}
		return nil
	}, c.readRetry)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrSnapshotFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrSnapshotFetchFailed, err)
	}
	return doc.toSnapshot()
}

type settlementBody struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Label     string          `json:"label"`
	Amount    decimal.Decimal `json:"amount"`
	EnterDebt bool            `json:"enter_debt"`
}

// Settle enters a payment. NOT_OWED requests first enter the matching debt.
func (c *Client) Settle(ctx context.Context, req model.SettlementRequest) error {
	if !req.Category.Actionable() {
		return fmt.Errorf("%w: category %q is not actionable", common.ErrSettlementFailed, req.Category)
	}
	var enterDebt bool
	switch req.Disposition {
	case model.DispositionOwed:
	case model.DispositionNotOwed:
		enterDebt = true
	default:
		return fmt.Errorf("%w: disposition %s cannot be settled", common.ErrSettlementFailed, req.Disposition)
	}

	payload, err := json.Marshal(settlementBody{
		Name:      req.Name,
		Category:  string(req.Category),
		Label:     req.Category.Label(),
		Amount:    req.Amount,
		EnterDebt: enterDebt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, "/settlements", payload)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrSettlementFailed, err)
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return fmt.Errorf("%w: %w", common.ErrSettlementFailed, statusError(status, body))
	}

	c.logger.Info("Settlement entered",
		"name", req.Name,
		"category", req.Category,
		"amount", req.Amount.String(),
		"enter_debt", enterDebt)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func statusError(status int, body []byte) error {
	return fmt.Errorf("gateway error (status %d): %s", status, common.Truncate(strings.TrimSpace(string(body)), 200))
}

// itemDoc is one ledger line as the sidecar reports it. Category may be a
// code or a ledger label.
type itemDoc struct {
	Amount   *decimal.Decimal `json:"amount"`
	Category string           `json:"category"`
	Date     string           `json:"date"`
	Settled  bool             `json:"settled"`
}

type snapshotDoc struct {
	Raw              *snapshot.Raw `json:"raw,omitempty"`
	OwedFees         []itemDoc     `json:"owed_fees"`
	PaidFees         []itemDoc     `json:"paid_fees"`
	OwedInstallments []itemDoc     `json:"owed_installments"`
	PaidInstallments []itemDoc     `json:"paid_installments"`
}

// toSnapshot prefers structured lists and falls back to raw OCR rows.
func (d snapshotDoc) toSnapshot() (*model.AccountSnapshot, error) {
	structured := len(d.OwedFees)+len(d.PaidFees)+len(d.OwedInstallments)+len(d.PaidInstallments) > 0
	if !structured && d.Raw != nil {
		return snapshot.Build(*d.Raw), nil
	}

	snap := &model.AccountSnapshot{}
	var err error
	if snap.OwedFees, err = convertItems(d.OwedFees, false); err != nil {
		return nil, err
	}
	if snap.PaidFees, err = convertItems(d.PaidFees, true); err != nil {
		return nil, err
	}
	if snap.OwedInstallments, err = convertItems(d.OwedInstallments, false); err != nil {
		return nil, err
	}
	if snap.PaidInstallments, err = convertItems(d.PaidInstallments, true); err != nil {
		return nil, err
	}
	return snap, nil
}

func convertItems(docs []itemDoc, paid bool) ([]model.LedgerItem, error) {
	items := make([]model.LedgerItem, 0, len(docs))
	for _, doc := range docs {
		cat, ok := model.ParseCategory(doc.Category)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", common.ErrSnapshotFetchFailed, doc.Category)
		}
		it := model.LedgerItem{Category: cat, Amount: doc.Amount, Settled: paid || doc.Settled}
		if doc.Date != "" {
			d, err := statement.ParseDate(doc.Date)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrSnapshotFetchFailed, err)
			}
			it.Date = &d
		}
		items = append(items, it)
	}
	return items, nil
}
