package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type stubLimiter struct {
	allow      bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.retryAfter, s.err
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
		wantRetry  string
	}{
		{name: "allowed", limiter: &stubLimiter{allow: true}, wantStatus: http.StatusOK},
		{name: "limited", limiter: &stubLimiter{retryAfter: 1500 * time.Millisecond}, wantStatus: http.StatusTooManyRequests, wantRetry: "2"},
		{name: "limiter unavailable", limiter: &stubLimiter{err: errors.New("dial tcp: refused")}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.limiter, zaptest.NewLogger(t))(http.HandlerFunc(okHandler))

			r := httptest.NewRequest(http.MethodPost, "/api/waitlist", nil)
			r.RemoteAddr = "203.0.113.7:51234"
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))
			assert.Equal(t, []string{"203.0.113.7"}, tt.limiter.keys)
		})
	}
}

func TestRateLimit_NilLimiter(t *testing.T) {
	h := RateLimit(nil, zaptest.NewLogger(t))(http.HandlerFunc(okHandler))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
