package engine

import "github.com/Veraticus/kasa/internal/model"

// Observer is told about each selected row. index counts rows in processing
// order, not statement order.
type Observer interface {
	RowStarted(index, total int, txn model.Transaction)
	RowFinished(index, total int, txn model.Transaction, records []model.SettlementRecord)
}

// NopObserver ignores all events.
type NopObserver struct{}

// RowStarted implements Observer.
func (NopObserver) RowStarted(int, int, model.Transaction) {}

// RowFinished implements Observer.
func (NopObserver) RowFinished(int, int, model.Transaction, []model.SettlementRecord) {}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) RowStarted(index, total int, txn model.Transaction) {
	for _, o := range m {
		o.RowStarted(index, total, txn)
	}
}

func (m multiObserver) RowFinished(index, total int, txn model.Transaction, records []model.SettlementRecord) {
	for _, o := range m {
		o.RowFinished(index, total, txn, records)
	}
}
