// Package report renders feedback for download.
package report

import (
	"context"
	"embed"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"

	"github.com/jung-kurt/gofpdf"

	"github.com/pavelanni/mocktest/internal/grader"
	appI18n "github.com/pavelanni/mocktest/internal/i18n"
	"github.com/pavelanni/mocktest/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DejaVu Sans covers Latin and Cyrillic.
//
//go:embed fonts/DejaVuSansCondensed.ttf
var fontRegular []byte

//go:embed fonts/DejaVuSansCondensed-Bold.ttf
var fontBold []byte

const fontFamily = "DejaVu"

var (
	loadOnce sync.Once
	loadErr  error
	textTmpl *template.Template
)

func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"strip": grader.StripHTML,
		"t": func(id string) string {
			return appI18n.T(ctx, id)
		},
		"td": func(id string, kv ...any) string {
			return appI18n.Td(ctx, id, pairs(kv))
		},
	}
}

func pairs(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}

func load() error {
	loadOnce.Do(func() {
		textTmpl, loadErr = template.New("feedback.txt.tmpl").
			Funcs(funcs(context.Background())).
			ParseFS(templateFS, "templates/feedback.txt.tmpl")
	})
	return loadErr
}

// Text writes feedback in the plain "copy all" layout: one block per
// sub-question, then the total and the improvement tips. Labels follow the
// localizer carried by ctx.
func Text(ctx context.Context, w io.Writer, fb model.Feedback) error {
	if err := load(); err != nil {
		return fmt.Errorf("load feedback template: %w", err)
	}
	t, err := textTmpl.Clone()
	if err != nil {
		return err
	}
	return t.Funcs(funcs(ctx)).Execute(w, fb)
}

// PDF writes a one-page A4 feedback report.
func PDF(ctx context.Context, w io.Writer, q model.Question, fb model.Feedback) error {
	return writePDF(ctx, w, q, fb, true)
}

func writePDF(ctx context.Context, w io.Writer, q model.Question, fb model.Feedback, compress bool) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fontBold)

	heading := appI18n.Tpd(ctx, "ReportHeading", q.Marks, map[string]any{"Number": q.Number})
	pdf.SetTitle(heading, true)
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.Cell(0, 10, heading)
	pdf.Ln(12)

	answerLabel := appI18n.T(ctx, "ReportAnswer")
	feedbackLabel := appI18n.T(ctx, "ReportFeedback")
	for _, p := range fb.Parts {
		pdf.SetFont(fontFamily, "B", 12)
		pdf.Cell(0, 7, appI18n.Td(ctx, "ReportPartScore", map[string]any{
			"Index":     p.Index,
			"Awarded":   p.Awarded,
			"Allocated": p.Allocated,
		}))
		pdf.Ln(8)

		pdf.SetFont(fontFamily, "", 11)
		if p.Index-1 < len(q.SubQuestions) {
			pdf.MultiCell(0, 6, firstLine(q.SubQuestions[p.Index-1]), "", "L", false)
		}
		pdf.MultiCell(0, 6, answerLabel+": "+p.Answer, "", "L", false)
		pdf.MultiCell(0, 6, feedbackLabel+": "+grader.StripHTML(p.Comment), "", "L", false)
		pdf.Ln(3)
	}

	pdf.SetFont(fontFamily, "B", 12)
	pdf.Cell(0, 8, appI18n.Td(ctx, "TotalAwarded", map[string]any{
		"Awarded":   fb.TotalAwarded,
		"Allocated": fb.TotalAllocated,
	}))
	pdf.Ln(10)

	if len(fb.Improvements) > 0 {
		pdf.SetFont(fontFamily, "B", 12)
		pdf.Cell(0, 8, appI18n.T(ctx, "ReportImprovements"))
		pdf.Ln(8)
		pdf.SetFont(fontFamily, "", 11)
		for _, tip := range fb.Improvements {
			pdf.MultiCell(0, 6, "- "+tip, "", "L", false)
		}
	}

	return pdf.Output(w)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
