package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/google/uuid"
)

// FinishFunc is called once a supervised run ends, before its handle is
// released.
type FinishFunc func(ctx context.Context, summary *RunSummary, err error)

// Supervisor owns at most one active run.
type Supervisor struct {
	driver   *Driver
	status   service.StatusStore
	logger   *slog.Logger
	onFinish FinishFunc
	active   *RunHandle
	mu       sync.Mutex
}

// NewSupervisor wraps driver. onFinish may be nil.
func NewSupervisor(driver *Driver, status service.StatusStore, onFinish FinishFunc, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{driver: driver, status: status, onFinish: onFinish, logger: logger}
}

// RunHandle controls one background run.
type RunHandle struct {
	StartedAt time.Time
	summary   *RunSummary
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
	ID        string
}

// Cancel requests a stop after the current row.
func (h *RunHandle) Cancel() { h.cancel() }

// Done is closed when the run has ended.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run ends or ctx is done.
func (h *RunHandle) Wait(ctx context.Context) (*RunSummary, error) {
	select {
	case <-h.done:
		return h.summary, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start launches a run on its own goroutine. It fails with
// common.ErrRunActive while another run is in progress.
func (s *Supervisor) Start(ctx context.Context, txns []model.Transaction, opts RunOptions) (*RunHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, fmt.Errorf("%w: run %s", common.ErrRunActive, s.active.ID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	opts.RunID = uuid.NewString()
	h := &RunHandle{
		ID:        opts.RunID,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.active = h

	go s.run(runCtx, h, txns, opts)
	s.logger.Info("Run started", "run_id", h.ID, "rows", len(txns))
	return h, nil
}

func (s *Supervisor) run(ctx context.Context, h *RunHandle, txns []model.Transaction, opts RunOptions) {
	defer h.cancel()

	summary, err := s.driver.Run(ctx, txns, opts)
	h.summary, h.err = summary, err
	if s.onFinish != nil {
		s.onFinish(context.WithoutCancel(ctx), summary, err)
	}

	s.mu.Lock()
	if s.active == h {
		s.active = nil
	}
	s.mu.Unlock()
	close(h.done)
}

// Active returns the running handle or nil.
func (s *Supervisor) Active() *RunHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop cancels the active run and waits for it. With no run active it
// resets the processing status. It reports whether a run was stopped.
func (s *Supervisor) Stop(ctx context.Context) (bool, error) {
	h := s.Active()
	if h == nil {
		if err := s.status.ClearStatus(ctx); err != nil {
			return false, fmt.Errorf("failed to reset status: %w", err)
		}
		s.logger.Info("No active run, status reset")
		return false, nil
	}

	h.Cancel()
	if _, err := h.Wait(ctx); err != nil && ctx.Err() != nil {
		return true, fmt.Errorf("run %s did not stop: %w", h.ID, err)
	}
	s.logger.Info("Run stopped", "run_id", h.ID)
	return true, nil
}
