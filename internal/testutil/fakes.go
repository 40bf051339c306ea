package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/shopspring/decimal"
)

// FakeLedger is an in-memory external ledger. It implements
// service.SnapshotReader and service.SettlementAction.
type FakeLedger struct {
	Accounts    map[string]*model.AccountSnapshot
	FetchErrors map[string]error
	SettleError map[model.Category]error
	Fetches     []string
	Settlements []model.SettlementRequest
	mu          sync.Mutex
}

// NewFakeLedger creates an empty ledger.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		Accounts:    make(map[string]*model.AccountSnapshot),
		FetchErrors: make(map[string]error),
		SettleError: make(map[model.Category]error),
	}
}

// Put registers a student account.
func (l *FakeLedger) Put(name string, snap *model.AccountSnapshot) *FakeLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Accounts[name] = snap
	return l
}

// FetchSnapshot implements service.SnapshotReader.
func (l *FakeLedger) FetchSnapshot(_ context.Context, name string) (*model.AccountSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Fetches = append(l.Fetches, name)
	if err, ok := l.FetchErrors[name]; ok {
		return nil, err
	}
	snap, ok := l.Accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: student %q", common.ErrNotFound, name)
	}
	return snap, nil
}

// Settle implements service.SettlementAction.
func (l *FakeLedger) Settle(_ context.Context, req model.SettlementRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.SettleError[req.Category]; ok {
		return err
	}
	l.Settlements = append(l.Settlements, req)
	return nil
}

// FetchCount returns the number of snapshot reads so far.
func (l *FakeLedger) FetchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Fetches)
}

// SettledRequests returns a copy of the settlements entered so far.
func (l *FakeLedger) SettledRequests() []model.SettlementRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.SettlementRequest, len(l.Settlements))
	copy(out, l.Settlements)
	return out
}

// FakeNotifier collects messages. It implements service.Notifier.
type FakeNotifier struct {
	Err      error
	Messages []string
	mu       sync.Mutex
}

// Notify implements service.Notifier.
func (n *FakeNotifier) Notify(_ context.Context, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Messages = append(n.Messages, body)
	return nil
}

// Sent returns a copy of the delivered messages.
func (n *FakeNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.Messages))
	copy(out, n.Messages)
	return out
}

// Day returns midnight UTC on the given date.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Dec returns an integral decimal.
func Dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// Owed is an unpaid ledger item.
func Owed(c model.Category, amount int64) model.LedgerItem {
	a := Dec(amount)
	return model.LedgerItem{Category: c, Amount: &a}
}

// Paid is a settled ledger item dated on.
func Paid(c model.Category, amount int64, on time.Time) model.LedgerItem {
	a := Dec(amount)
	return model.LedgerItem{Category: c, Amount: &a, Date: &on, Settled: true}
}

// Transfer builds an eligible statement row paid by sender via FAST.
func Transfer(row int, sender string, amount int64, on time.Time) model.Transaction {
	return model.Transaction{
		Row:         row,
		Description: "FAST-" + sender + "-",
		Amount:      Dec(amount),
		Tag:         "Para Transferi",
		Date:        on,
	}
}

// WithBalance sets the running balance of txn.
func WithBalance(txn model.Transaction, balance string) model.Transaction {
	b := decimal.RequireFromString(balance)
	txn.Balance = &b
	return txn
}
