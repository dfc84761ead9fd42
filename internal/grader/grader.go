// Package grader produces per-sub-question feedback for a submitted answer.
package grader

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/mocktest/internal/marks"
	"github.com/pavelanni/mocktest/internal/model"
)

const maxAnswerRunes = 10000

var htmlTagRegex = regexp.MustCompile(`<[^>]+>`)

// Grader turns an answer into feedback. alloc holds the marks allocated to
// each part and has q.Parts() entries.
type Grader interface {
	Grade(ctx context.Context, q model.Question, a model.Answer, alloc []int) (model.Feedback, error)
}

// Mock is a Grader that does not evaluate anything. Each part receives a
// canned recorded answer, comment and tip, and is awarded its full
// allocation unless Award says otherwise.
type Mock struct {
	Answers      []string
	Comments     []string
	Improvements []string

	// Award, if set, decides the marks for a part. The result is clamped
	// into [0, allocated].
	Award func(index, allocated int) int
}

// NewMock returns a Mock loaded with the default canned texts.
func NewMock() *Mock {
	return &Mock{
		Answers:      defaultAnswers,
		Comments:     defaultComments,
		Improvements: defaultImprovements,
	}
}

// Grade implements Grader.
func (m *Mock) Grade(ctx context.Context, q model.Question, a model.Answer, alloc []int) (model.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return model.Feedback{}, err
	}
	if len(alloc) != q.Parts() {
		return model.Feedback{}, fmt.Errorf("allocation has %d parts, question %s has %d", len(alloc), q.Number, q.Parts())
	}

	fb := model.Feedback{QuestionNumber: q.Number}
	for i, allocated := range alloc {
		recorded := pick(m.Answers, i)
		if i == 0 && a.Image == nil {
			recorded = sanitizeAnswer(a.Text)
		}
		part := model.SubFeedback{
			Index:     i + 1,
			Allocated: allocated,
			Awarded:   clamp(m.award(i, allocated), allocated),
			Answer:    recorded,
			Comment:   pick(m.Comments, i),
		}
		fb.Parts = append(fb.Parts, part)
		fb.TotalAllocated += part.Allocated
		fb.TotalAwarded += part.Awarded
	}
	for i := range alloc {
		if tip := pick(m.Improvements, i); tip != "" {
			fb.Improvements = append(fb.Improvements, tip)
		}
	}

	slog.Debug("mock grade", "question", q.Number, "parts", len(fb.Parts), "awarded", fb.TotalAwarded)
	return fb, nil
}

// Validate checks that feedback matches the question it grades: one entry
// per part, awarded within [0, allocated], and allocations summing to the
// question's marks.
func Validate(fb model.Feedback, q model.Question) error {
	if len(fb.Parts) != q.Parts() {
		return fmt.Errorf("feedback has %d parts, want %d", len(fb.Parts), q.Parts())
	}
	alloc := make([]int, len(fb.Parts))
	awarded := 0
	for i, p := range fb.Parts {
		if p.Awarded < 0 || p.Awarded > p.Allocated {
			return fmt.Errorf("part %d: awarded %d outside [0, %d]", p.Index, p.Awarded, p.Allocated)
		}
		alloc[i] = p.Allocated
		awarded += p.Awarded
	}
	if total := marks.Sum(alloc); total != q.Marks || fb.TotalAllocated != q.Marks {
		return fmt.Errorf("allocated %d (reported %d), question %s is worth %d", total, fb.TotalAllocated, q.Number, q.Marks)
	}
	if awarded != fb.TotalAwarded {
		return fmt.Errorf("awarded parts sum to %d, reported %d", awarded, fb.TotalAwarded)
	}
	return nil
}

// StripHTML removes markup from feedback text.
func StripHTML(s string) string {
	return htmlTagRegex.ReplaceAllString(s, "")
}

func (m *Mock) award(i, allocated int) int {
	if m.Award == nil {
		return allocated
	}
	return m.Award(i, allocated)
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

func pick(list []string, i int) string {
	if len(list) == 0 {
		return ""
	}
	return list[i%len(list)]
}

func sanitizeAnswer(answer string) string {
	answer = StripHTML(answer)
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
