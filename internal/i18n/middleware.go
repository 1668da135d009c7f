package i18n

import "net/http"

// Middleware injects the localizer into every request context. The language
// comes from the lang query parameter, then Accept-Language, then defaultLang.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), defaultLang)
			ctx := Localize(r.Context(), tag.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
