package server

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/Veraticus/kasa/internal/escalation"
)

const (
	replyBusy         = "Bir işlem zaten devam ediyor. Lütfen bitmesini bekleyin."
	replyDownloadFail = "Dosya indirilemedi. Lütfen tekrar deneyin."
	replyBadFile      = "Bu dosya türü desteklenmiyor. Lütfen Excel (.xlsx), CSV veya OFX ekstre gönderin."
	replyNoMedia      = "Dosya alma kapalı: Twilio kimlik bilgileri eksik."
	replyNoEscalation = "Mesaj işleme kapalı: dil modeli yapılandırılmamış."
)

// mediaExtensions maps the statement content types WhatsApp delivers.
var mediaExtensions = map[string]string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/csv":                 ".csv",
	"text/plain":               ".csv",
	"application/csv":          ".csv",
	"application/x-ofx":        ".ofx",
	"application/vnd.intu.qfx": ".ofx",
}

type twimlMessage struct {
	Body string `xml:",chardata"`
}

type twimlResponse struct {
	XMLName  xml.Name       `xml:"Response"`
	Messages []twimlMessage `xml:"Message"`
}

func writeTwiML(w http.ResponseWriter, messages ...string) {
	resp := twimlResponse{}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, twimlMessage{Body: m})
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(resp); err != nil {
		http.Error(w, "failed to encode reply", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(buf.Bytes())
}

// replyWhatsApp is the Twilio webhook. A statement attachment starts a new
// run. A text message answers the oldest open record: it is acknowledged at
// once and resolved in the background, with the result sent through the notifier.
func (s *Server) replyWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	numMedia, _ := strconv.Atoi(r.PostForm.Get("NumMedia"))
	logger := s.logger.With("request_id", requestIDFromContext(r.Context()), "from", r.PostForm.Get("From"))

	if numMedia > 0 {
		s.receiveStatement(w, r)
		return
	}

	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if body == "" {
		writeTwiML(w)
		return
	}
	if s.deps.Escalator == nil {
		writeTwiML(w, replyNoEscalation)
		return
	}

	logger.Info("Operator reply received", "length", len(body))
	s.background(func(ctx context.Context) {
		out, err := s.deps.Escalator.Resolve(ctx, body)
		switch {
		case err != nil:
			logger.Error("Escalation failed", "error", err)
			s.notify(ctx, escalation.FailureMessage(err))
		case out.Kind != escalation.KindResolved:
			s.notify(ctx, out.Reply)
		}
	})
	writeTwiML(w, escalation.ProcessingReply)
}

func (s *Server) receiveStatement(w http.ResponseWriter, r *http.Request) {
	if s.deps.Media == nil {
		writeTwiML(w, replyNoMedia)
		return
	}
	if s.deps.Runs.Active() != nil {
		writeTwiML(w, replyBusy)
		return
	}

	mediaURL := r.PostForm.Get("MediaUrl0")
	contentType := strings.TrimSpace(strings.Split(r.PostForm.Get("MediaContentType0"), ";")[0])
	ext, ok := mediaExtensions[strings.ToLower(contentType)]
	if !ok {
		writeTwiML(w, replyBadFile)
		return
	}

	data, _, err := s.deps.Media.DownloadMedia(r.Context(), mediaURL)
	if err != nil {
		s.logger.Error("Media download failed", "url", mediaURL, "error", err)
		writeTwiML(w, replyDownloadFail)
		return
	}

	name := path.Base(mediaURL)
	if name == "" || name == "." || name == "/" {
		name = "statement"
	}
	saved, err := s.saveStatement(r.Context(), name+ext, bytes.NewReader(data))
	if err != nil {
		s.logger.Error("Failed to save statement", "error", err)
		writeTwiML(w, escalation.FailureMessage(err))
		return
	}

	if _, err := s.startRun(r.Context(), saved, nil); err != nil {
		s.logger.Error("Failed to start run", "path", saved, "error", err)
		writeTwiML(w, escalation.FailureMessage(err))
		return
	}
	writeTwiML(w, escalation.StartedReply)
}
