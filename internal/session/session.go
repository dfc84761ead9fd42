// Package session drives a practice session: it owns the message log, the
// staged answer and the current question, and simulates asynchronous
// analysis with two scheduled transitions per submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/mocktest/internal/grader"
	"github.com/pavelanni/mocktest/internal/marks"
	"github.com/pavelanni/mocktest/internal/model"
)

const (
	DefaultAnalyzingDelay = 300 * time.Millisecond
	DefaultFeedbackDelay  = 2 * time.Second

	analyzingText = "AI is analyzing your answer…"
	imageAnswer   = "Image uploaded"
)

var (
	ErrNoQuestions   = errors.New("session: no questions")
	ErrInvalidDelay  = errors.New("session: feedback delay must not be shorter than analyzing delay")
	ErrEmptyAnswer   = errors.New("session: empty answer")
	ErrNothingStaged = errors.New("session: nothing staged")
	ErrInFlight      = errors.New("session: submission already in flight")
	ErrFeedbackReady = errors.New("session: question already graded")
	ErrNoFeedback    = errors.New("session: no feedback for current question")
	ErrComplete      = errors.New("session: complete")
	ErrClosed        = errors.New("session: closed")
)

// Snapshot is a consistent copy of the session state for display.
type Snapshot struct {
	ID        string          `json:"id"`
	Phase     model.Phase     `json:"phase"`
	Progress  model.Progress  `json:"progress"`
	InFlight  bool            `json:"in_flight"`
	Staged    *model.Answer   `json:"staged,omitempty"`
	Messages  []model.Message `json:"messages"`
	LastError string          `json:"last_error,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session identifier.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithScheduler replaces the wall clock.
func WithScheduler(sched Scheduler) Option {
	return func(s *Session) { s.sched = sched }
}

// WithGrader replaces the default mock grader.
func WithGrader(g grader.Grader) Option {
	return func(s *Session) { s.grader = g }
}

// WithDelays sets the delays, measured from submission, after which the
// analyzing placeholder and the feedback appear.
func WithDelays(analyzing, feedback time.Duration) Option {
	return func(s *Session) {
		s.analyzingDelay = analyzing
		s.feedbackDelay = feedback
	}
}

// WithObserver registers a callback that receives a snapshot after every
// state change. It is called without the session lock held.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observer = fn }
}

// Session is a single learner's pass through an ordered question set.
// All methods are safe for concurrent use; timer callbacks and callers
// serialize on one mutex, so there is exactly one mutator at a time.
type Session struct {
	mu sync.Mutex

	id        string
	questions []model.Question
	index     int
	log       []model.Message
	nextID    int
	staged    model.Answer
	submitted model.Answer
	inFlight  bool
	phase     model.Phase
	lastErr   error

	// submission numbers accepted submits; a timer only acts if its number
	// is still current.
	submission int
	pending    []Timer
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc

	sched          Scheduler
	grader         grader.Grader
	analyzingDelay time.Duration
	feedbackDelay  time.Duration
	observer       func(Snapshot)
	logger         *slog.Logger
}

// New starts a session on the first of questions.
func New(questions []model.Question, opts ...Option) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	s := &Session{
		questions:      append([]model.Question(nil), questions...),
		sched:          WallClock{},
		grader:         grader.NewMock(),
		analyzingDelay: DefaultAnalyzingDelay,
		feedbackDelay:  DefaultFeedbackDelay,
		phase:          model.PhaseAwaitingAnswer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.analyzingDelay < 0 || s.feedbackDelay < s.analyzingDelay {
		return nil, ErrInvalidDelay
	}
	for _, q := range s.questions {
		if q.Marks < 0 {
			return nil, fmt.Errorf("question %s: negative marks %d", q.Number, q.Marks)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.logger = slog.With("session", s.id)
	s.appendQuestionLocked()
	s.logger.Info("session started", "questions", len(s.questions))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// StageText stages a typed answer, replacing anything staged before.
// Blank text clears the stage.
func (s *Session) StageText(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		s.staged = model.Answer{}
	} else {
		s.staged = model.Answer{Text: text}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// StageImage stages a photographed answer, replacing anything staged before.
func (s *Session) StageImage(img model.Image) error {
	if len(img.Data) == 0 {
		return ErrEmptyAnswer
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	img.Data = append([]byte(nil), img.Data...)
	s.staged = model.Answer{Image: &img}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// ClearStage drops the staged answer.
func (s *Session) ClearStage() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.staged = model.Answer{}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Staged returns the currently staged answer.
func (s *Session) Staged() model.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// Submit sends the staged answer. A rejected submit changes nothing.
func (s *Session) Submit() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.phase == model.PhaseComplete:
		s.mu.Unlock()
		return ErrComplete
	case s.inFlight:
		s.mu.Unlock()
		return ErrInFlight
	case s.phase == model.PhaseFeedbackReady:
		s.mu.Unlock()
		return ErrFeedbackReady
	case s.staged.IsEmpty():
		s.mu.Unlock()
		return ErrNothingStaged
	}

	answer := s.staged
	content := answer.Text
	if answer.Image != nil {
		content = imageAnswer
	}
	s.appendLocked(model.Message{Kind: model.KindAnswer, Content: content, Answer: &answer})

	s.submitted = answer
	s.staged = model.Answer{}
	s.inFlight = true
	s.lastErr = nil
	s.phase = model.PhaseSubmitted
	s.submission++
	sub := s.submission

	s.stopPendingLocked()
	s.pending = append(s.pending,
		s.sched.AfterFunc(s.analyzingDelay, func() { s.showAnalyzing(sub) }),
		s.sched.AfterFunc(s.feedbackDelay, func() { s.deliverFeedback(sub) }),
	)
	s.logger.Info("answer submitted", "question", s.questions[s.index].Number, "image", answer.Image != nil)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Advance moves to the next question once the current one has feedback.
// It reports done when there is no next question; the session is then
// complete and no question message is added.
func (s *Session) Advance() (done bool, err error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return false, ErrClosed
	case s.phase == model.PhaseComplete:
		s.mu.Unlock()
		return false, ErrComplete
	case s.phase != model.PhaseFeedbackReady:
		s.mu.Unlock()
		return false, ErrNoFeedback
	}

	s.staged = model.Answer{}
	if s.index+1 >= len(s.questions) {
		s.phase = model.PhaseComplete
		s.logger.Info("session complete", "questions", len(s.questions))
		done = true
	} else {
		s.index++
		s.phase = model.PhaseAwaitingAnswer
		s.appendQuestionLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return done, nil
}

// Close tears the session down. Pending transitions never apply afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPendingLocked()
	s.cancel()
	s.mu.Unlock()

	s.logger.Info("session closed")
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Messages returns a copy of the message log.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.log...)
}

// Phase returns the state of the current question.
func (s *Session) Phase() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// InFlight reports whether a submission awaits feedback.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Current returns the active question.
func (s *Session) Current() model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[s.index]
}

// Progress reports position in the question set.
func (s *Session) Progress() model.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// LatestFeedback returns the most recent feedback in the log.
func (s *Session) LatestFeedback() (model.Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].Kind == model.KindFeedback {
			return *s.log[i].Feedback, true
		}
	}
	return model.Feedback{}, false
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) showAnalyzing(sub int) {
	s.mu.Lock()
	if s.closed || sub != s.submission || s.phase != model.PhaseSubmitted {
		s.mu.Unlock()
		return
	}
	s.appendLocked(model.Message{Kind: model.KindAnalyzing, Content: analyzingText})
	s.phase = model.PhaseAnalyzing
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Session) deliverFeedback(sub int) {
	s.mu.Lock()
	if s.closed || sub != s.submission || !s.inFlight {
		s.mu.Unlock()
		return
	}

	s.removeAnalyzingLocked()
	s.inFlight = false
	s.pending = nil

	q := s.questions[s.index]
	fb, err := s.gradeLocked(q)
	if err != nil {
		// The answer stays in the log; the learner may stage and submit again.
		s.lastErr = err
		s.phase = model.PhaseAwaitingAnswer
		s.logger.Error("grading failed", "question", q.Number, "error", err)
	} else {
		s.appendLocked(model.Message{Kind: model.KindFeedback, Feedback: &fb})
		s.phase = model.PhaseFeedbackReady
		s.logger.Info("feedback ready", "question", q.Number, "awarded", fb.TotalAwarded, "allocated", fb.TotalAllocated)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Session) gradeLocked(q model.Question) (model.Feedback, error) {
	alloc, err := marks.Allocate(q.Marks, q.Parts())
	if err != nil {
		return model.Feedback{}, fmt.Errorf("allocate marks: %w", err)
	}
	fb, err := s.grader.Grade(s.ctx, q, s.submitted, alloc)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("grade: %w", err)
	}
	fb.QuestionNumber = q.Number
	if err := grader.Validate(fb, q); err != nil {
		return model.Feedback{}, fmt.Errorf("invalid feedback: %w", err)
	}
	return fb, nil
}

func (s *Session) appendQuestionLocked() {
	q := s.questions[s.index]
	s.appendLocked(model.Message{Kind: model.KindQuestion, Content: q.Content, Question: &q})
}

func (s *Session) appendLocked(m model.Message) {
	s.nextID++
	m.ID = s.nextID
	m.At = s.sched.Now()
	s.log = append(s.log, m)
}

func (s *Session) removeAnalyzingLocked() {
	kept := s.log[:0]
	for _, m := range s.log {
		if m.Kind != model.KindAnalyzing {
			kept = append(kept, m)
		}
	}
	s.log = kept
}

func (s *Session) stopPendingLocked() {
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = nil
}

func (s *Session) progressLocked() model.Progress {
	total := len(s.questions)
	return model.Progress{
		Index:    s.index,
		Total:    total,
		Percent:  float64(s.index+1) / float64(total) * 100,
		Complete: s.phase == model.PhaseComplete,
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:       s.id,
		Phase:    s.phase,
		Progress: s.progressLocked(),
		InFlight: s.inFlight,
		Messages: append([]model.Message(nil), s.log...),
	}
	if !s.staged.IsEmpty() {
		staged := s.staged
		snap.Staged = &staged
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.observer != nil {
		s.observer(snap)
	}
}
