package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/statement"
	"github.com/shopspring/decimal"
)

const maxUploadSize = 20 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "200 OK")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{Records: []recordDoc{}}

	records, err := s.deps.Log.ListRecords(ctx, service.RecordFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toRecordDoc(rec))
	}
	if resp.Pending, err = s.deps.Log.CountPending(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	current, err := s.deps.Status.GetStatus(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	default:
		resp.Current = toStatusDoc(current)
	}
	if h := s.deps.Runs.Active(); h != nil {
		resp.ActiveRun = h.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer func() { _ = file.Close() }()

	if _, err := statement.DetectFormat(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, "only .xlsx, .csv and .ofx statements are accepted")
		return
	}
	if s.deps.Runs.Active() != nil {
		writeError(w, http.StatusConflict, common.ErrRunActive.Error())
		return
	}

	path, err := s.saveStatement(r.Context(), header.Filename, file)
	if err != nil {
		s.logger.Error("Failed to save upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "statement uploaded", Filename: path})
}

type startRequest struct {
	ResumeBalance *string `json:"resume_balance"`
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	var resume *decimal.Decimal
	if req.ResumeBalance != nil && strings.TrimSpace(*req.ResumeBalance) != "" {
		b, err := statement.ParseAmount(*req.ResumeBalance)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid resume balance %q", *req.ResumeBalance))
			return
		}
		resume = &b
	}

	path := s.currentStatement()
	if path == "" {
		writeError(w, http.StatusBadRequest, "no statement uploaded, upload a file first")
		return
	}

	runID, err := s.startRun(r.Context(), path, resume)
	switch {
	case errors.Is(err, common.ErrRunActive):
		writeError(w, http.StatusConflict, "a run is already active, stop it first")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := "run started for " + filepath.Base(path)
	if resume != nil {
		msg += " (resuming from balance " + resume.String() + ")"
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg, RunID: runID})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	stopped, err := s.deps.Runs.Stop(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg := "state reset"
	if stopped {
		msg = "run stopped"
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
}

// startRun parses path and hands it to the run controller.
func (s *Server) startRun(ctx context.Context, path string, resume *decimal.Decimal) (string, error) {
	if s.deps.Runs.Active() != nil {
		return "", common.ErrRunActive
	}
	txns, err := s.deps.Statements(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read statement: %w", err)
	}

	opts := s.cfg.RunOptions
	opts.ResumeBalance = resume
	h, err := s.deps.Runs.Start(s.baseCtx, txns, opts)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

func (s *Server) currentStatement() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != "" {
		if _, err := os.Stat(s.current); err == nil {
			return s.current
		}
	}
	entries, err := os.ReadDir(s.cfg.UploadsDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := statement.DetectFormat(e.Name()); err == nil {
			s.current = filepath.Join(s.cfg.UploadsDir, e.Name())
			return s.current
		}
	}
	return ""
}

// saveStatement replaces any previous statement with data and starts a new
// settlement log, archiving the old one.
func (s *Server) saveStatement(ctx context.Context, filename string, data io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadsDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}
	s.cleanupUploads()

	name := filepath.Base(filepath.Clean("/" + filename))
	path := filepath.Join(s.cfg.UploadsDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // name is reduced to its base
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := s.resetLog(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.current = path
	s.mu.Unlock()
	s.logger.Info("Statement saved", "path", path)
	return path, nil
}

func (s *Server) resetLog(ctx context.Context) error {
	records, err := s.deps.Log.ListRecords(ctx, service.RecordFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to inspect settlement log: %w", err)
	}
	if len(records) > 0 && s.deps.Archiver != nil {
		info, err := s.deps.Archiver.Archive(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to archive settlement log: %w", err)
		}
		s.logger.Info("Settlement log archived", "id", info.ID, "records", info.Records)
	}
	if err := s.deps.Log.ClearRecords(ctx); err != nil {
		return err
	}
	return s.deps.Status.ClearStatus(ctx)
}

// cleanupUploads removes earlier statements from the uploads directory.
func (s *Server) cleanupUploads() {
	entries, err := os.ReadDir(s.cfg.UploadsDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := statement.DetectFormat(e.Name()); err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.UploadsDir, e.Name())); err != nil {
			s.logger.Warn("Failed to delete old upload", "file", e.Name(), "error", err)
		}
	}
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
}
