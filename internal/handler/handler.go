package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/pavelanni/mocktest/internal/handler/views"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/report"
	"github.com/pavelanni/mocktest/internal/session"
	"github.com/pavelanni/mocktest/internal/store"
)

const (
	// MaxImageBytes caps an uploaded answer photo.
	MaxImageBytes = 10 << 20
	// maxFormBytes leaves room for multipart framing around the image.
	maxFormBytes  = MaxImageBytes + 1<<20
	submitBurst   = 5
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
	config   model.ServerConfig
	limiter  *rate.Limiter
}

// New creates a new Handler.
func New(s *store.Store, m *session.Manager, cfg model.ServerConfig) (*Handler, error) {
	if s == nil || m == nil {
		return nil, errors.New("handler: store and session manager are required")
	}
	limit := rate.Inf
	if cfg.SubmitRate > 0 {
		limit = rate.Limit(cfg.SubmitRate)
	}
	return &Handler{
		store:    s,
		sessions: m,
		config:   cfg,
		limiter:  rate.NewLimiter(limit, submitBurst),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	r.Get("/", h.handleIndex)
	r.Post("/practice/start", h.handleStart)
	r.Get("/practice/{sessionID}", h.handleChatPage)
	r.With(h.throttle).Post("/practice/{sessionID}/stage", h.handleStage)
	r.With(h.throttle).Post("/practice/{sessionID}/image", h.handleImage)
	r.With(h.throttle).Post("/practice/{sessionID}/submit", h.handleSubmit)
	r.Post("/practice/{sessionID}/next", h.handleNext)
	r.With(h.corsMiddleware()).Get("/practice/{sessionID}/state", h.handleState)
	r.With(h.corsMiddleware()).Options("/practice/{sessionID}/state", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/practice/{sessionID}/feedback.txt", h.handleFeedbackText)
	r.Get("/practice/{sessionID}/feedback.pdf", h.handleFeedbackPDF)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	questions, err := h.store.ListQuestionsFiltered(h.config.Section, h.config.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := views.IndexData{Questions: questions}
	for _, q := range questions {
		data.TotalMarks += q.Marks
	}
	if active := h.sessions.Active(); active != nil && !active.Closed() {
		data.ActiveID = active.ID()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start()
	if err != nil {
		if errors.Is(err, session.ErrNoQuestions) {
			http.Error(w, "No questions match the configured filters.", http.StatusBadRequest)
			return
		}
		slog.Error("start session failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.chatPath(sess), http.StatusSeeOther)
}

func (h *Handler) handleChatPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	data := views.ChatData{
		Snapshot: sess.Snapshot(),
		Current:  sess.Current(),
	}
	if data.Ready() || data.Complete() {
		if fb, ok := sess.LatestFeedback(); ok {
			data.Feedback = &fb
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ChatPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var err error
	if r.FormValue("clear") != "" {
		err = sess.ClearStage()
	} else {
		err = sess.StageText(r.FormValue("answer"))
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, h.chatPath(sess), http.StatusSeeOther)
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	file, hdr, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if hdr.Size > MaxImageBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		http.Error(w, "failed to read image", http.StatusBadRequest)
		return
	}
	if len(data) > MaxImageBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		slog.Warn("rejected upload", "detected", mt.String(), "filename", hdr.Filename)
		http.Error(w, "unsupported file type "+mt.String(), http.StatusBadRequest)
		return
	}

	img := model.Image{Name: filepath.Base(hdr.Filename), MIME: mt.String(), Data: data}
	if err := sess.StageImage(img); err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, h.chatPath(sess), http.StatusSeeOther)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Submit(); err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, h.chatPath(sess), http.StatusSeeOther)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	done, err := sess.Advance()
	if err != nil {
		h.fail(w, err)
		return
	}
	if done {
		slog.Info("practice finished", "session", sess.ID())
	}
	http.Redirect(w, r, h.chatPath(sess), http.StatusSeeOther)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(sess.Snapshot()); err != nil {
		slog.Error("encode state", "error", err)
	}
}

func (h *Handler) handleFeedbackText(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_, fb, err := currentFeedback(sess)
	if err != nil {
		h.fail(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Text(r.Context(), &buf, fb); err != nil {
		slog.Error("render feedback text", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(fb, "txt"))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleFeedbackPDF(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	q, fb, err := currentFeedback(sess)
	if err != nil {
		h.fail(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.PDF(r.Context(), &buf, q, fb); err != nil {
		slog.Error("render feedback pdf", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(fb, "pdf"))
	_, _ = w.Write(buf.Bytes())
}

// currentFeedback returns the feedback for the question on screen. After
// Next moves on, the previous question's feedback is no longer offered.
func currentFeedback(sess *session.Session) (model.Question, model.Feedback, error) {
	switch sess.Phase() {
	case model.PhaseFeedbackReady, model.PhaseComplete:
	default:
		return model.Question{}, model.Feedback{}, session.ErrNoFeedback
	}
	fb, ok := sess.LatestFeedback()
	if !ok {
		return model.Question{}, model.Feedback{}, session.ErrNoFeedback
	}
	return sess.Current(), fb, nil
}

func attachment(fb model.Feedback, ext string) string {
	return fmt.Sprintf(`attachment; filename="feedback-q%s.%s"`, fb.QuestionNumber, ext)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return sess, true
}

// statusFor maps session rejections onto HTTP: bad input is 400, an
// operation out of order is 409, a stale or unknown session is 404.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyAnswer), errors.Is(err, session.ErrNothingStaged):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInFlight),
		errors.Is(err, session.ErrFeedbackReady),
		errors.Is(err, session.ErrNoFeedback),
		errors.Is(err, session.ErrComplete):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	} else {
		slog.Debug("request rejected", "status", status, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) chatPath(sess *session.Session) string {
	return h.path("/practice/" + sess.ID())
}
