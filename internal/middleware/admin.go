package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenHeader содержит токен администратора.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken пропускает только запросы с токеном администратора. Пустой токен
// в конфигурации закрывает доступ полностью.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
