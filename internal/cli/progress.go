package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/schollz/progressbar/v3"
)

// RunProgress shows a progress bar for a batch run and prints flagged rows
// as they happen. It implements engine.Observer.
type RunProgress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	flags  int
	mu     sync.Mutex
}

var _ engine.Observer = (*RunProgress)(nil)

// NewRunProgress creates a progress observer writing to w.
func NewRunProgress(w io.Writer) *RunProgress {
	return &RunProgress{writer: w}
}

func (p *RunProgress) initBar(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Reconciling statement...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// RowStarted implements engine.Observer.
func (p *RunProgress) RowStarted(_, total int, _ model.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.initBar(total)
	}
}

// RowFinished implements engine.Observer.
func (p *RunProgress) RowFinished(_, _ int, txn model.Transaction, records []model.SettlementRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range records {
		if !rec.Disposition.IsOpen() {
			continue
		}
		p.flags++
		line := fmt.Sprintf("%s row %d: %s %s (%s)", FlagIcon, txn.Row+1, rec.Disposition, rec.Amount.StringFixed(2), truncateCell(txn.Description, 50))
		if err := p.bar.Clear(); err != nil {
			slog.Debug("Failed to clear progress bar", "error", err)
		}
		if _, err := fmt.Fprintln(p.writer, DispositionStyle(rec.Disposition).Render(line)); err != nil {
			slog.Warn("Failed to write flagged row", "error", err)
		}
	}
	if err := p.bar.Add(1); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Flags returns how many flag or error records were shown.
func (p *RunProgress) Flags() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}
