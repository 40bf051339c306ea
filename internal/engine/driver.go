// Package engine walks a bank statement and reconciles each eligible
// transfer against the external student ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/kasa/internal/classification"
	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/payer"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/statement"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxNoteLen bounds error and description text stored on records.
const maxNoteLen = 200

// PayerResolver finds the paying student for a transfer description.
type PayerResolver interface {
	Resolve(ctx context.Context, description string) (payer.Result, error)
}

// Deps are the driver's collaborators.
type Deps struct {
	Classifier *classification.Classifier
	Payers     PayerResolver
	Snapshots  service.SnapshotReader
	Settler    service.SettlementAction
	Log        service.SettlementLog
	Status     service.StatusStore
}

// Driver processes statements row by row.
type Driver struct {
	deps        Deps
	logger      *slog.Logger
	transferTag string
}

// NewDriver creates a driver. transferTag defaults to
// statement.DefaultTransferTag.
func NewDriver(deps Deps, transferTag string, logger *slog.Logger) (*Driver, error) {
	switch {
	case deps.Classifier == nil:
		return nil, fmt.Errorf("driver: classifier is required")
	case deps.Payers == nil:
		return nil, fmt.Errorf("driver: payer resolver is required")
	case deps.Snapshots == nil:
		return nil, fmt.Errorf("driver: snapshot reader is required")
	case deps.Settler == nil:
		return nil, fmt.Errorf("driver: settlement action is required")
	case deps.Log == nil:
		return nil, fmt.Errorf("driver: settlement log is required")
	case deps.Status == nil:
		return nil, fmt.Errorf("driver: status store is required")
	}
	if transferTag == "" {
		transferTag = statement.DefaultTransferTag
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{deps: deps, logger: logger, transferTag: transferTag}, nil
}

// RunOptions control a single run.
type RunOptions struct {
	// ResumeBalance restarts after the last row whose running balance has
	// this integral part, walking toward row 0.
	ResumeBalance *decimal.Decimal
	Observer      Observer
	RunID         string
	// EnterUnowed enters a debt and payment for items the ledger does not list.
	EnterUnowed bool
}

// RunSummary reports what a run did.
type RunSummary struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	RunID           string
	Rows            int
	Processed       int
	Skipped         int
	Flagged         int
	Errors          int
	Unmatched       int
	Settled         int
	Records         int
	AlreadyComplete bool
	Cancelled       bool
}

// snapshotCache holds the snapshot of the most recent payer.
type snapshotCache struct {
	snap *model.AccountSnapshot
	name string
}

func (c *snapshotCache) reset() { *c = snapshotCache{} }

// Run processes txns. Cancellation is honoured between rows; a row already
// started finishes. The returned error is ctx.Err() after a cancellation and
// nil otherwise, since row failures are recorded rather than returned.
func (d *Driver) Run(ctx context.Context, txns []model.Transaction, opts RunOptions) (*RunSummary, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	summary := &RunSummary{RunID: opts.RunID, StartedAt: time.Now().UTC()}
	logger := d.logger.With("run_id", opts.RunID)

	if err := d.deps.Status.ClearStatus(ctx); err != nil {
		logger.Warn("Failed to clear processing status", "error", err)
	}

	order, complete := SelectRows(txns, opts.ResumeBalance)
	summary.Rows = len(order)
	summary.AlreadyComplete = complete
	logger.Info("Starting run",
		"rows", len(txns),
		"selected", len(order),
		"resume", opts.ResumeBalance != nil,
		"already_complete", complete)

	var cache snapshotCache
	var runErr error
	for i, idx := range order {
		if err := ctx.Err(); err != nil {
			runErr = err
			summary.Cancelled = true
			logger.Info("Run cancelled", "remaining", len(order)-i)
			break
		}

		txn := txns[idx]
		obs.RowStarted(i, len(order), txn)
		res := d.processRow(context.WithoutCancel(ctx), logger, opts, txn, &cache)
		summary.add(res)
		obs.RowFinished(i, len(order), txn, res.records)
	}

	summary.FinishedAt = time.Now().UTC()
	final := model.ProcessingStatus{Stage: model.StageCompleted}
	if summary.Cancelled {
		final.Stage = model.StageFailed
	}
	d.setStatus(context.WithoutCancel(ctx), logger, final)

	logger.Info("Run finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"flagged", summary.Flagged,
		"errors", summary.Errors,
		"settled", summary.Settled,
		"cancelled", summary.Cancelled)
	return summary, runErr
}

// SelectRows returns the statement indexes to process, in order. Without a
// resume balance every row is taken front to back. With one, the highest
// index whose balance matches (integral part only) is found and the rows
// before it are returned walking back to 0; complete reports that nothing
// is left to do.
func SelectRows(txns []model.Transaction, resume *decimal.Decimal) (order []int, complete bool) {
	if resume == nil {
		order = make([]int, len(txns))
		for i := range txns {
			order[i] = i
		}
		return order, false
	}

	target := resume.Truncate(0)
	match := -1
	for i := len(txns) - 1; i >= 0; i-- {
		if b := txns[i].Balance; b != nil && b.Truncate(0).Equal(target) {
			match = i
			break
		}
	}
	if match <= 0 {
		return nil, true
	}
	for i := match - 1; i >= 0; i-- {
		order = append(order, i)
	}
	return order, false
}

type rowOutcome int

const (
	outcomeSkipped rowOutcome = iota
	outcomeSettled
	outcomeFlagged
	outcomeUnmatched
	outcomeError
)

type rowResult struct {
	records []model.SettlementRecord
	outcome rowOutcome
	settled int
}

func (s *RunSummary) add(r rowResult) {
	s.Records += len(r.records)
	s.Settled += r.settled
	switch r.outcome {
	case outcomeSkipped:
		s.Skipped++
		return
	case outcomeFlagged:
		s.Flagged++
	case outcomeUnmatched:
		s.Unmatched++
	case outcomeError:
		s.Errors++
	}
	s.Processed++
}

// processRow handles one transaction and appends its records. It never
// returns an error: failures become an ERROR record.
func (d *Driver) processRow(ctx context.Context, logger *slog.Logger, opts RunOptions, txn model.Transaction, cache *snapshotCache) rowResult {
	if !txn.IsIncome() || txn.Tag != d.transferTag {
		logger.Debug("Skipping row", "row", txn.Row, "amount", txn.Amount.String(), "tag", txn.Tag)
		return rowResult{outcome: outcomeSkipped}
	}

	w := &rowWriter{driver: d, ctx: ctx, logger: logger, runID: opts.RunID, txn: txn}
	outcome, err := d.reconcile(w, opts, cache)
	if err == nil {
		return rowResult{records: w.records, outcome: outcome, settled: w.settled}
	}

	cache.reset()
	logger.Error("Row failed", "row", txn.Row, "name", w.name, "error", err)
	d.setStatus(ctx, logger, model.ProcessingStatus{Name: w.name, Stage: model.StageFailed, Amount: txn.Amount})
	rec := w.record(nil, model.DispositionError, txn.Amount, common.Truncate(err.Error(), maxNoteLen))
	if appendErr := d.deps.Log.AppendRecord(ctx, rec); appendErr != nil {
		logger.Error("Failed to record row error", "row", txn.Row, "error", appendErr)
	} else {
		w.records = append(w.records, *rec)
	}
	return rowResult{records: w.records, outcome: outcomeError, settled: w.settled}
}

func (d *Driver) reconcile(w *rowWriter, opts RunOptions, cache *snapshotCache) (rowOutcome, error) {
	ctx, txn := w.ctx, w.txn
	d.setStatus(ctx, w.logger, model.ProcessingStatus{Stage: model.StageProcessing, Amount: txn.Amount})

	res, err := d.deps.Payers.Resolve(ctx, txn.Description)
	switch {
	case errors.Is(err, payer.ErrPOS):
		cache.reset()
		return outcomeFlagged, w.flag(nil, model.DispositionFlagPOS, txn.Amount)
	case errors.Is(err, common.ErrPayerNotResolved):
		cache.reset()
		inferred := d.deps.Classifier.InferCategory(txn.Amount)
		return outcomeFlagged, w.flag(&inferred, model.DispositionFlagNameNotFound, txn.Amount)
	case err != nil:
		return outcomeError, fmt.Errorf("resolve payer: %w", err)
	}
	w.name = res.Name

	snap := cache.snap
	if snap == nil || cache.name != res.Name {
		d.setStatus(ctx, w.logger, model.ProcessingStatus{Name: res.Name, Stage: model.StageProcessing, Amount: txn.Amount})
		snap, err = d.deps.Snapshots.FetchSnapshot(ctx, res.Name)
		if err != nil {
			cache.reset()
			w.logger.Warn("Account snapshot unavailable", "name", res.Name, "error", err)
			inferred := d.deps.Classifier.InferCategory(txn.Amount)
			return outcomeFlagged, w.flag(&inferred, model.DispositionFlagNameNotFound, txn.Amount)
		}
		cache.snap, cache.name = snap, res.Name
	} else {
		w.logger.Debug("Reusing cached snapshot", "name", res.Name)
	}

	assignments := classification.SortForSettlement(d.deps.Classifier.Classify(txn.Amount, txn.Date, snap))
	if len(assignments) == 0 {
		w.logger.Info("No category matched", "row", txn.Row, "name", res.Name, "amount", txn.Amount.String())
		return outcomeUnmatched, nil
	}
	amounts := classification.SettlementAmounts(txn.Amount, assignments)

	outcome := outcomeSettled
	for i, a := range assignments {
		cat, amount := a.Category, amounts[i]
		d.setStatus(ctx, w.logger, model.ProcessingStatus{Name: res.Name, Stage: model.StageProcessing, Category: cat, Amount: amount})

		switch {
		case a.Disposition.IsFlag():
			outcome = outcomeFlagged
			if err := w.flag(&cat, a.Disposition, amount); err != nil {
				return outcomeError, err
			}
			continue
		case a.Disposition == model.DispositionOwed,
			a.Disposition == model.DispositionNotOwed && opts.EnterUnowed:
			req := model.SettlementRequest{Name: res.Name, Category: cat, Disposition: a.Disposition, Amount: amount}
			if err := d.deps.Settler.Settle(ctx, req); err != nil {
				return outcomeError, fmt.Errorf("settle %s %s: %w", cat, amount, err)
			}
			w.settled++
		}

		if err := w.append(w.record(&cat, a.Disposition, amount, "")); err != nil {
			return outcomeError, err
		}
		d.setStatus(ctx, w.logger, model.ProcessingStatus{Name: res.Name, Stage: model.StageAlmostCompleted, Category: cat, Amount: amount})
	}
	return outcome, nil
}

func (d *Driver) setStatus(ctx context.Context, logger *slog.Logger, status model.ProcessingStatus) {
	if err := d.deps.Status.SetStatus(ctx, status); err != nil {
		logger.Warn("Failed to update processing status", "stage", status.Stage, "error", err)
	}
}

// rowWriter accumulates the records of one row.
type rowWriter struct {
	driver  *Driver
	ctx     context.Context
	logger  *slog.Logger
	runID   string
	name    string
	records []model.SettlementRecord
	txn     model.Transaction
	settled int
}

func (w *rowWriter) record(cat *model.Category, d model.Disposition, amount decimal.Decimal, note string) *model.SettlementRecord {
	return &model.SettlementRecord{
		RunID:       w.runID,
		Row:         w.txn.Row,
		Name:        w.name,
		Amount:      amount,
		Category:    cat,
		Disposition: d,
		Note:        note,
	}
}

func (w *rowWriter) append(rec *model.SettlementRecord) error {
	if err := w.driver.deps.Log.AppendRecord(w.ctx, rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	w.records = append(w.records, *rec)
	return nil
}

// flag records an open item. The description is kept so the operator can
// identify the transfer.
func (w *rowWriter) flag(cat *model.Category, d model.Disposition, amount decimal.Decimal) error {
	w.driver.setStatus(w.ctx, w.logger, model.ProcessingStatus{
		Name: w.name, Stage: model.StageFlagged, Category: categoryOf(cat), Amount: amount,
	})
	w.logger.Info("Row flagged", "row", w.txn.Row, "name", w.name, "disposition", d, "amount", amount.String())
	return w.append(w.record(cat, d, amount, common.Truncate(w.txn.Description, maxNoteLen)))
}

func categoryOf(c *model.Category) model.Category {
	if c == nil {
		return ""
	}
	return *c
}
