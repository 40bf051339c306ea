package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/service"
	tea "github.com/charmbracelet/bubbletea"
)

// tick waits one interval before asking for a refresh.
func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadSnapshot reads the status, records, and pending count.
func (m Model) loadSnapshot() tea.Cmd {
	cfg := m.config
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg := snapshotMsg{at: time.Now()}
		if cfg.Log == nil {
			msg.err = fmt.Errorf("settlement log not configured")
			return msg
		}

		if cfg.Status != nil {
			status, err := cfg.Status.GetStatus(ctx)
			switch {
			case err == nil:
				msg.status = status
			case !errors.Is(err, common.ErrNotFound):
				msg.err = fmt.Errorf("failed to read status: %w", err)
				return msg
			}
		}

		records, err := cfg.Log.ListRecords(ctx, service.RecordFilter{RunID: cfg.RunID, Limit: cfg.Limit})
		if err != nil {
			msg.err = fmt.Errorf("failed to list records: %w", err)
			return msg
		}
		msg.records = records

		pending, err := cfg.Log.CountPending(ctx)
		if err != nil {
			msg.err = fmt.Errorf("failed to count pending records: %w", err)
			return msg
		}
		msg.pending = pending
		return msg
	}
}
