package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func sessionCookie(t *testing.T, m *AuthMiddleware, userID int64) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, userID)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", false)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(sessionCookie(t, m, 42))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret", false)
	other := NewAuthMiddleware("other-secret", false)

	valid := sessionCookie(t, m, 42)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "foreign signature", cookie: sessionCookie(t, other, 42)},
		{name: "tampered user id", cookie: &http.Cookie{Name: valid.Name, Value: "43" + valid.Value[2:]}},
		{name: "no separator", cookie: &http.Cookie{Name: valid.Name, Value: "42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestSetAuthCookie_Attributes(t *testing.T) {
	c := sessionCookie(t, NewAuthMiddleware("s", true), 1)

	if !c.HttpOnly {
		t.Fatalf("cookie must be HttpOnly")
	}
	if !c.Secure {
		t.Fatalf("cookie must be Secure when configured")
	}
}
