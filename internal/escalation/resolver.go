// Package escalation settles flagged records from free-text operator replies.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/llm"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/shopspring/decimal"
)

// IntentExtractor reads what an operator reply says.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, message string) (llm.Intent, error)
}

// CategoryInferrer guesses a category from an amount alone.
type CategoryInferrer interface {
	InferCategory(amount decimal.Decimal) model.Category
}

// Kind is the result class of one escalation message.
type Kind string

// Outcome kinds.
const (
	KindNothingPending Kind = "nothing_pending"
	KindNotUnderstood  Kind = "not_understood"
	KindUnresolved     Kind = "unresolved"
	KindResolved       Kind = "resolved"
)

// Outcome describes what a message did.
type Outcome struct {
	// Record is the flag the message was applied to, as it was before
	// resolution. It is nil when nothing was pending.
	Record    *model.SettlementRecord
	Kind      Kind
	Name      string
	Category  model.Category
	Reply     string
	Remaining int
}

// Deps are the resolver's collaborators. Notifier may be nil.
type Deps struct {
	Log       service.SettlementLog
	Extractor IntentExtractor
	Settler   service.SettlementAction
	Notifier  service.Notifier
	Inferrer  CategoryInferrer
}

// Resolver applies operator replies to the oldest open flag, one record per
// message.
type Resolver struct {
	deps   Deps
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a resolver.
func New(deps Deps, logger *slog.Logger) (*Resolver, error) {
	switch {
	case deps.Log == nil:
		return nil, fmt.Errorf("%w: settlement log", common.ErrMissingConfig)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%w: intent extractor", common.ErrMissingConfig)
	case deps.Settler == nil:
		return nil, fmt.Errorf("%w: settlement action", common.ErrMissingConfig)
	case deps.Inferrer == nil:
		return nil, fmt.Errorf("%w: category inferrer", common.ErrMissingConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{deps: deps, logger: logger}, nil
}

// Resolve handles one operator message. Settlement and storage failures are
// returned; every other result is an Outcome with a reply for the operator.
func (r *Resolver) Resolve(ctx context.Context, message string) (*Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.deps.Log.FirstPending(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return &Outcome{Kind: KindNothingPending, Reply: replyAllDone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending record: %w", err)
	}

	intent, err := r.deps.Extractor.ExtractIntent(ctx, message)
	if err != nil {
		return nil, err
	}
	if intent.NoInformation {
		r.logger.Info("Reply carries no information", "record_id", rec.ID, "reason", intent.Reason)
		return &Outcome{Record: rec, Kind: KindNotUnderstood, Reply: notUnderstood(message)}, nil
	}

	name, category := r.patch(rec, intent)
	out := &Outcome{Record: rec, Name: name, Category: category}
	if name == "" || !category.Actionable() {
		r.logger.Info("Reply did not resolve record",
			"record_id", rec.ID,
			"name", name,
			"category", category)
		out.Kind = KindUnresolved
		out.Reply = unresolved(rec, name, category)
		return out, nil
	}

	req := model.SettlementRequest{Name: name, Category: category, Disposition: model.DispositionOwed, Amount: rec.Amount}
	if err := r.deps.Settler.Settle(ctx, req); err != nil {
		r.logger.Error("Escalated settlement failed", "record_id", rec.ID, "name", name, "error", err)
		return nil, common.NewUserError(settleFailed(name, err), fmt.Errorf("%w: %w", common.ErrSettlementFailed, err))
	}

	// The settlement is already entered, so a lost transition must surface
	// rather than be retried.
	if err := r.deps.Log.ResolveRecord(ctx, rec.ID, rec.Disposition, name, category); err != nil {
		r.logger.Error("Settled but failed to close record", "record_id", rec.ID, "error", err)
		return nil, fmt.Errorf("record %d settled but not closed: %w", rec.ID, err)
	}

	out.Kind = KindResolved
	if out.Remaining, err = r.deps.Log.CountPending(ctx); err != nil {
		r.logger.Warn("Failed to count pending records", "error", err)
	}
	out.Reply = resolved(name, category, rec.Amount, out.Remaining)
	r.logger.Info("Record resolved",
		"record_id", rec.ID,
		"name", name,
		"category", category,
		"amount", rec.Amount.String(),
		"remaining", out.Remaining)

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.Notify(ctx, out.Reply); err != nil {
			r.logger.Warn("Failed to notify resolution", "record_id", rec.ID, "error", err)
		}
	}
	return out, nil
}

// patch computes the name and category a flag is settled with.
func (r *Resolver) patch(rec *model.SettlementRecord, intent llm.Intent) (string, model.Category) {
	extracted := model.Category("")
	if intent.Category != nil {
		extracted = *intent.Category
	}

	name := rec.Name
	switch rec.Disposition {
	case model.DispositionError:
		// A failed row keeps whatever the driver resolved unless the reply
		// corrects it.
		if intent.Name != "" {
			name = intent.Name
		}
		switch {
		case extracted != "":
			return name, extracted
		case rec.Category != nil && rec.Category.Actionable():
			return name, *rec.Category
		}
	case model.DispositionFlagNameNotFound, model.DispositionFlagPOS:
		if intent.Name != "" {
			name = intent.Name
		}
		switch {
		case rec.Category != nil && rec.Category.Actionable():
			return name, *rec.Category
		case extracted != "":
			return name, extracted
		}
	default:
		if name == "" {
			name = intent.Name
		}
		if extracted != "" {
			return name, extracted
		}
	}
	return name, r.deps.Inferrer.InferCategory(rec.Amount)
}
