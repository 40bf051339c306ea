package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Veraticus/kasa/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Success  bool   `json:"success"`
}

type recordDoc struct {
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	RunID       string     `json:"run_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Label       string     `json:"label,omitempty"`
	Amount      string     `json:"amount"`
	Disposition string     `json:"disposition"`
	Note        string     `json:"note,omitempty"`
	ID          int64      `json:"id"`
	Row         int        `json:"row"`
}

type statusDoc struct {
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `json:"name,omitempty"`
	Stage     string    `json:"stage"`
	Category  string    `json:"category,omitempty"`
	Amount    string    `json:"amount"`
}

type statusResponse struct {
	Current   *statusDoc  `json:"current"`
	ActiveRun string      `json:"active_run,omitempty"`
	Records   []recordDoc `json:"records"`
	Pending   int         `json:"pending"`
}

func toRecordDoc(rec model.SettlementRecord) recordDoc {
	doc := recordDoc{
		ID:          rec.ID,
		RunID:       rec.RunID,
		Row:         rec.Row,
		Name:        rec.Name,
		Amount:      rec.Amount.String(),
		Disposition: string(rec.Disposition),
		Note:        rec.Note,
		CreatedAt:   rec.CreatedAt,
		ResolvedAt:  rec.ResolvedAt,
	}
	if rec.Category != nil {
		doc.Category = string(*rec.Category)
		doc.Label = rec.Category.Label()
	}
	return doc
}

func toStatusDoc(s *model.ProcessingStatus) *statusDoc {
	if s == nil {
		return nil
	}
	return &statusDoc{
		Name:      s.Name,
		Stage:     string(s.Stage),
		Category:  string(s.Category),
		Amount:    s.Amount.String(),
		UpdatedAt: s.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
