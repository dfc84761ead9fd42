package model

import (
	"context"
	"encoding/base64"
	"strings"
	"time"
)

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Question is a practice question with its sub-question prompts.
type Question struct {
	ID           int64    `json:"id"`
	Number       string   `json:"number"`
	Section      string   `json:"section"`
	Type         string   `json:"type"`
	Marks        int      `json:"marks"`
	Content      string   `json:"content"`
	SubQuestions []string `json:"sub_questions"`
}

// Parts returns the number of gradable parts. An atomic question with no
// sub-questions is graded as a single part.
func (q Question) Parts() int {
	if len(q.SubQuestions) == 0 {
		return 1
	}
	return len(q.SubQuestions)
}

// Image is an uploaded answer photo. The controller treats it as opaque.
type Image struct {
	Name string `json:"name,omitempty"`
	MIME string `json:"mime"`
	Data []byte `json:"-"`
}

// DataURI encodes the image as a data: URI for inline display.
func (img Image) DataURI() string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Answer is a staged or submitted answer: either free text or a single image.
type Answer struct {
	Text  string `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

// IsEmpty reports whether nothing usable is staged.
func (a Answer) IsEmpty() bool {
	if a.Image != nil {
		return len(a.Image.Data) == 0
	}
	return strings.TrimSpace(a.Text) == ""
}

// MessageKind tags the variant carried by a Message.
type MessageKind int

const (
	KindQuestion MessageKind = iota
	KindAnswer
	KindAnalyzing
	KindFeedback
)

func (k MessageKind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindAnswer:
		return "answer"
	case KindAnalyzing:
		return "analyzing"
	case KindFeedback:
		return "feedback"
	}
	return "unknown"
}

// MarshalText lets kinds appear by name in JSON snapshots.
func (k MessageKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Message is one entry of the session log. Exactly one payload matching
// Kind is set; analyzing placeholders carry none.
type Message struct {
	ID       int         `json:"id"`
	Kind     MessageKind `json:"kind"`
	Content  string      `json:"content,omitempty"`
	At       time.Time   `json:"at"`
	Question *Question   `json:"question,omitempty"`
	Answer   *Answer     `json:"answer,omitempty"`
	Feedback *Feedback   `json:"feedback,omitempty"`
}

// SubFeedback is the result for one sub-question.
type SubFeedback struct {
	Index     int    `json:"index"`
	Allocated int    `json:"allocated"`
	Awarded   int    `json:"awarded"`
	Answer    string `json:"answer"`
	Comment   string `json:"comment"`
}

// Feedback is the graded result for one submission.
type Feedback struct {
	QuestionNumber string        `json:"question_number"`
	Parts          []SubFeedback `json:"parts"`
	Improvements   []string      `json:"improvements"`
	TotalAllocated int           `json:"total_allocated"`
	TotalAwarded   int           `json:"total_awarded"`
}

// Phase is the per-question state of a practice session.
type Phase string

const (
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseSubmitted      Phase = "submitted"
	PhaseAnalyzing      Phase = "analyzing"
	PhaseFeedbackReady  Phase = "feedback_ready"
	PhaseComplete       Phase = "complete"
)

// Progress describes how far through the question set a session is.
type Progress struct {
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
	Complete bool    `json:"complete"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Section        string // empty means all sections
	Type           string // empty means all question types
	AnalyzingDelay time.Duration
	FeedbackDelay  time.Duration
	BasePath       string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies  bool   // Set Secure flag on cookies (disable for local dev)
	SubmitRate     float64
	AllowedOrigins []string
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Number       string   `json:"number"`
	Section      string   `json:"section"`
	Type         string   `json:"type"`
	Marks        int      `json:"marks"`
	Content      string   `json:"content"`
	SubQuestions []string `json:"sub_questions"`
}
