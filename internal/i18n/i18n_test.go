package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Mock Test" {
		t.Errorf("T(AppTitle) = %q, want 'Mock Test'", got)
	}

	got = T(ctx, "NextQuestion")
	if got != "Next question" {
		t.Errorf("T(NextQuestion) = %q, want 'Next question'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AppTitle")
	if got != "Пробный тест" {
		t.Errorf("T(AppTitle) = %q, want 'Пробный тест'", got)
	}

	got = T(ctx, "Send")
	if got != "Отправить" {
		t.Errorf("T(Send) = %q, want 'Отправить'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsAvailable", 1)
	if got1 != "1 question available." {
		t.Errorf("Tp(QuestionsAvailable, 1) = %q, want '1 question available.'", got1)
	}

	got5 := Tp(ctx, "QuestionsAvailable", 5)
	if got5 != "5 questions available." {
		t.Errorf("Tp(QuestionsAvailable, 5) = %q, want '5 questions available.'", got5)
	}
}

func TestPluralWithData(t *testing.T) {
	ctx := initLang(t, "en")

	got := Tpd(ctx, "QuestionMarks", 1, map[string]any{"Number": "4"})
	if got != "(4) (1 Mark)" {
		t.Errorf("Tpd(QuestionMarks, 1) = %q, want '(4) (1 Mark)'", got)
	}
	got = Tpd(ctx, "QuestionMarks", 10, map[string]any{"Number": "1"})
	if got != "(1) (10 Marks)" {
		t.Errorf("Tpd(QuestionMarks, 10) = %q, want '(1) (10 Marks)'", got)
	}

	ruCtx := initLang(t, "ru")
	got = Tpd(ruCtx, "QuestionMarks", 12, map[string]any{"Number": "3"})
	if got != "(3) (12 баллов)" {
		t.Errorf("Tpd(QuestionMarks, 12) ru = %q, want '(3) (12 баллов)'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "TotalAwarded", map[string]any{"Awarded": 8, "Allocated": 10})
	if got != "Total Marks Awarded: 8/10" {
		t.Errorf("Td(TotalAwarded) = %q, want 'Total Marks Awarded: 8/10'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	if n := len(Languages()); n != 2 {
		t.Errorf("expected 2 languages, got %d", n)
	}
}

func TestMiddlewareNegotiation(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		name   string
		lang   string
		query  string
		accept string
		want   string
	}{
		{"fixed language", "ru", "", "en-US", "Пробный тест"},
		{"accept header", "", "", "ru-RU,ru;q=0.9", "Пробный тест"},
		{"query wins", "ru", "en", "", "Mock Test"},
		{"fallback", "", "", "", "Mock Test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware(tt.lang)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "AppTitle")
			}))
			url := "/"
			if tt.query != "" {
				url += "?lang=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("AppTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
