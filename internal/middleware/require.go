package middleware

import (
	"net/http"
)

// Checker answers permission checks. *permissions.Gate implements it.
type Checker interface {
	HasPermission(module, action string) bool
}

// RequirePermission lets the request through only when checker grants
// action on module. Everything else, including an unresolved checker, gets
// 403.
func RequirePermission(checker Checker, module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil || !checker.HasPermission(module, action) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
