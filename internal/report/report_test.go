package report

import (
	"bytes"
	"context"
	"os"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appI18n "github.com/pavelanni/mocktest/internal/i18n"
	"github.com/pavelanni/mocktest/internal/model"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func ruContext() context.Context {
	return appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("ru"))
}

// pdfString encodes s the way gofpdf writes text set in a UTF-8 font.
func pdfString(s string) []byte {
	var b []byte
	for _, u := range utf16.Encode([]rune(s)) {
		b = append(b, byte(u>>8), byte(u))
	}
	return b
}

func sampleFeedback() (model.Question, model.Feedback) {
	q := model.Question{
		Number:       "2",
		Marks:        3,
		SubQuestions: []string{"(i) Solve 2x + 5 = 17", "(ii) Area of 8 × 5 rectangle\nshow working"},
	}
	fb := model.Feedback{
		QuestionNumber: "2",
		Parts: []model.SubFeedback{
			{Index: 1, Allocated: 2, Awarded: 2, Answer: "x = 6", Comment: "<strong>Correct.</strong>"},
			{Index: 2, Allocated: 1, Awarded: 0, Answer: "40 cm", Comment: "Units should be cm²."},
		},
		Improvements:   []string{"Tip for Q1: show each step."},
		TotalAllocated: 3,
		TotalAwarded:   2,
	}
	return q, fb
}

func TestText(t *testing.T) {
	_, fb := sampleFeedback()

	var buf bytes.Buffer
	require.NoError(t, Text(context.Background(), &buf, fb))

	want := "Question 1\n" +
		"Marks Awarded: 2\n" +
		"Marks Allocated: 2\n" +
		"Student Answer: x = 6\n" +
		"Feedback: Correct.\n" +
		"\n" +
		"Question 2\n" +
		"Marks Awarded: 0\n" +
		"Marks Allocated: 1\n" +
		"Student Answer: 40 cm\n" +
		"Feedback: Units should be cm².\n" +
		"\n" +
		"Total Marks Awarded: 2/3\n" +
		"\n" +
		"Improvements:\n" +
		"- Tip for Q1: show each step.\n"
	assert.Equal(t, want, buf.String())
}

func TestTextWithoutImprovements(t *testing.T) {
	_, fb := sampleFeedback()
	fb.Improvements = nil

	var buf bytes.Buffer
	require.NoError(t, Text(context.Background(), &buf, fb))
	assert.NotContains(t, buf.String(), "Improvements")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("Total Marks Awarded: 2/3\n")))
}

func TestPDF(t *testing.T) {
	q, fb := sampleFeedback()

	var buf bytes.Buffer
	require.NoError(t, PDF(context.Background(), &buf, q, fb))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestTextLocalized(t *testing.T) {
	_, fb := sampleFeedback()
	fb.Parts = fb.Parts[:1]
	fb.Parts[0].Answer = "Привет мир"

	var buf bytes.Buffer
	require.NoError(t, Text(ruContext(), &buf, fb))

	want := "Вопрос 1\n" +
		"Получено баллов: 2\n" +
		"Максимум баллов: 2\n" +
		"Ответ ученика: Привет мир\n" +
		"Отзыв: Correct.\n" +
		"\n" +
		"Итого баллов: 2/3\n" +
		"\n" +
		"Советы по улучшению:\n" +
		"- Tip for Q1: show each step.\n"
	assert.Equal(t, want, buf.String())
}

func TestPDFKeepsCyrillic(t *testing.T) {
	q, fb := sampleFeedback()
	q.SubQuestions[0] = "(i) Решите уравнение"
	fb.Parts[0].Answer = "Привет мир"

	var buf bytes.Buffer
	require.NoError(t, writePDF(ruContext(), &buf, q, fb, false))

	out := buf.Bytes()
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.True(t, bytes.Contains(out, pdfString("Ответ ученика: Привет мир")), "answer text lost")
	assert.True(t, bytes.Contains(out, pdfString("Решите уравнение")), "sub-question text lost")
	assert.True(t, bytes.Contains(out, pdfString("Часть 1: 2/2")), "part label not localized")
	assert.False(t, bytes.Contains(out, pdfString("Student Answer")), "English label in Russian report")
}

func TestPDFEnglishLabels(t *testing.T) {
	q, fb := sampleFeedback()

	var buf bytes.Buffer
	require.NoError(t, writePDF(context.Background(), &buf, q, fb, false))
	assert.True(t, bytes.Contains(buf.Bytes(), pdfString("Student Answer: x = 6")))
	assert.True(t, bytes.Contains(buf.Bytes(), pdfString("Total Marks Awarded: 2/3")))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a", firstLine("a\nb"))
	assert.Equal(t, "abc", firstLine("abc"))
}
