package i18n

import "net/http"

// Middleware injects a localizer into every request context. A "lang" query
// parameter wins; then the configured lang; when lang is empty the
// Accept-Language header decides.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prefs := []string{r.URL.Query().Get("lang")}
			if lang != "" {
				prefs = append(prefs, lang)
			} else {
				prefs = append(prefs, r.Header.Get("Accept-Language"))
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
