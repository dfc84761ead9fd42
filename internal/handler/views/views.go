// Package views renders the landing and practice pages as templ components.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/mocktest/internal/i18n"
	"github.com/pavelanni/mocktest/internal/model"
	"github.com/pavelanni/mocktest/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// base holds the parsed pages. Request-scoped helpers are rebound on a clone
// for every render.
var base = template.Must(template.New("").Funcs(funcs(context.Background())).ParseFS(templateFS, "templates/*.html"))

func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string { return appI18n.T(ctx, id) },
		"td": func(id string, kv ...any) string {
			return appI18n.Td(ctx, id, pairs(kv))
		},
		"tp": func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"tpd": func(id string, n int, kv ...any) string {
			return appI18n.Tpd(ctx, id, n, pairs(kv))
		},
		"path": func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"kind": func(k model.MessageKind) string { return k.String() },
		"add1": func(n int) int { return n + 1 },
		"dataURI": func(img *model.Image) template.URL {
			return template.URL(img.DataURI())
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

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := base.Clone()
		if err != nil {
			return fmt.Errorf("clone templates: %w", err)
		}
		return t.Funcs(funcs(ctx)).ExecuteTemplate(w, name, data)
	})
}

// IndexData is shown on the landing page.
type IndexData struct {
	Questions  []model.Question
	TotalMarks int
	// ActiveID is the running session, if any, so the learner can resume.
	ActiveID string
}

// IndexPage renders the landing page.
func IndexPage(d IndexData) templ.Component {
	return render("index", d)
}

// ChatData is shown on the practice page.
type ChatData struct {
	Snapshot session.Snapshot
	Current  model.Question
	Feedback *model.Feedback
}

// Ready reports whether the Next button applies.
func (d ChatData) Ready() bool {
	return d.Snapshot.Phase == model.PhaseFeedbackReady
}

// Complete reports whether every question has been answered.
func (d ChatData) Complete() bool {
	return d.Snapshot.Phase == model.PhaseComplete
}

// CanSubmit reports whether a staged answer may be sent now.
func (d ChatData) CanSubmit() bool {
	return d.Snapshot.Phase == model.PhaseAwaitingAnswer && d.Snapshot.Staged != nil
}

// Accepting reports whether the answer inputs are enabled.
func (d ChatData) Accepting() bool {
	return d.Snapshot.Phase == model.PhaseAwaitingAnswer
}

// ChatPage renders the practice conversation.
func ChatPage(d ChatData) templ.Component {
	return render("chat", d)
}
