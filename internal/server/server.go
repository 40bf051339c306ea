// Package server exposes the reconciliation runs over HTTP: the WhatsApp
// webhook, live status and run control.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/engine"
	"github.com/Veraticus/kasa/internal/escalation"
	"github.com/Veraticus/kasa/internal/model"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/storage"
	"github.com/go-chi/chi/v5"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":3987"

// RunController starts and stops batch runs.
type RunController interface {
	Start(ctx context.Context, txns []model.Transaction, opts engine.RunOptions) (*engine.RunHandle, error)
	Stop(ctx context.Context) (bool, error)
	Active() *engine.RunHandle
}

// Escalator applies an operator reply to the pending records.
type Escalator interface {
	Resolve(ctx context.Context, message string) (*escalation.Outcome, error)
}

// MediaFetcher downloads webhook attachments.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// Archiver saves the settlement log before it is cleared.
type Archiver interface {
	Archive(ctx context.Context, id string) (*storage.ArchiveInfo, error)
}

// StatementLoader parses an uploaded statement file.
type StatementLoader func(ctx context.Context, path string) ([]model.Transaction, error)

// Deps are the server's collaborators. Escalator, Media and Archiver may be
// nil; the matching features are then disabled.
type Deps struct {
	Runs       RunController
	Escalator  Escalator
	Media      MediaFetcher
	Archiver   Archiver
	Log        service.SettlementLog
	Status     service.StatusStore
	Notifier   service.Notifier
	Statements StatementLoader
}

// Config holds server settings.
type Config struct {
	Addr       string
	UploadsDir string
	// RunOptions are applied to every run the server starts.
	RunOptions      engine.RunOptions
	ShutdownTimeout time.Duration
}

// Server is the HTTP surface.
type Server struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	baseCtx context.Context
	bg      sync.WaitGroup
	mu      sync.Mutex
	current string // last uploaded statement
}

// New creates a server.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	switch {
	case deps.Runs == nil:
		return nil, fmt.Errorf("%w: run controller", common.ErrMissingConfig)
	case deps.Log == nil:
		return nil, fmt.Errorf("%w: settlement log", common.ErrMissingConfig)
	case deps.Status == nil:
		return nil, fmt.Errorf("%w: status store", common.ErrMissingConfig)
	case deps.Notifier == nil:
		return nil, fmt.Errorf("%w: notifier", common.ErrMissingConfig)
	case deps.Statements == nil:
		return nil, fmt.Errorf("%w: statement loader", common.ErrMissingConfig)
	case cfg.UploadsDir == "":
		return nil, fmt.Errorf("%w: server.uploads_dir", common.ErrMissingConfig)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, cfg: cfg, logger: logger, baseCtx: context.Background()}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Post("/upload", s.upload)
	r.Post("/start", s.start)
	r.Post("/stop", s.stop)
	r.Post("/reply_whatsapp", s.replyWhatsApp)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully and
// stops any active run.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if _, err := s.deps.Runs.Stop(shutdownCtx); err != nil {
		s.logger.Warn("Active run did not stop", "error", err)
	}
	s.Wait()
	return nil
}

// Wait blocks until background work started by handlers has finished.
func (s *Server) Wait() { s.bg.Wait() }

// background runs fn detached from the request.
func (s *Server) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(context.WithoutCancel(s.baseCtx))
	}()
}

func (s *Server) notify(ctx context.Context, body string) {
	if err := s.deps.Notifier.Notify(ctx, body); err != nil {
		s.logger.Warn("Failed to notify operator", "error", err)
	}
}
