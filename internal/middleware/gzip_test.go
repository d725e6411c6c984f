package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBody(t *testing.T, s string) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

// echoWaitlist отвечает на запись в лист ожидания, возвращая адрес из тела запроса.
func echoWaitlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"email": req.Email, "message": "added to the waitlist"})
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		body            string
	}

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		body           func(t *testing.T) io.Reader
		acceptGzip     bool
		compressedBody bool
		want           want
	}{
		{
			name:       "json response compressed",
			handler:    echoWaitlist,
			body:       func(*testing.T) io.Reader { return strings.NewReader(`{"email":"alice@example.com"}`) },
			acceptGzip: true,
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				body:            `{"email":"alice@example.com","message":"added to the waitlist"}`,
			},
		},
		{
			name:    "client without gzip support",
			handler: echoWaitlist,
			body:    func(*testing.T) io.Reader { return strings.NewReader(`{"email":"bob@example.com"}`) },
			want: want{
				statusCode: http.StatusCreated,
				body:       `{"email":"bob@example.com","message":"added to the waitlist"}`,
			},
		},
		{
			name:           "compressed request body",
			handler:        echoWaitlist,
			body:           func(t *testing.T) io.Reader { return gzipBody(t, `{"email":"carol@example.com"}`) },
			acceptGzip:     true,
			compressedBody: true,
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				body:            `{"email":"carol@example.com","message":"added to the waitlist"}`,
			},
		},
		{
			name:           "corrupted compressed request body",
			handler:        echoWaitlist,
			body:           func(*testing.T) io.Reader { return strings.NewReader("not gzip") },
			compressedBody: true,
			want: want{
				statusCode: http.StatusBadRequest,
			},
		},
		{
			name: "implicit status on first write",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"currentTier":"TIER_1"}`))
			},
			acceptGzip: true,
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				body:            `{"currentTier":"TIER_1"}`,
			},
		},
		{
			name: "accepted without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			acceptGzip: true,
			want: want{
				statusCode: http.StatusAccepted,
			},
		},
		{
			name: "no content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
			acceptGzip: true,
			want: want{
				statusCode: http.StatusNoContent,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = http.NoBody
			if tt.body != nil {
				body = tt.body(t)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/waitlist", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}
			if tt.compressedBody {
				req.Header.Set("Content-Encoding", "gzip")
			}

			rec := httptest.NewRecorder()
			GzipMiddleware(tt.handler).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.want.statusCode, res.StatusCode)
			assert.Equal(t, tt.want.contentEncoding, res.Header.Get("Content-Encoding"))

			var got []byte
			var err error
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, gerr := gzip.NewReader(res.Body)
				require.NoError(t, gerr)
				defer gr.Close()
				got, err = io.ReadAll(gr)
			} else {
				got, err = io.ReadAll(res.Body)
			}
			require.NoError(t, err)

			switch {
			case tt.want.body != "":
				assert.JSONEq(t, tt.want.body, string(got))
			case tt.want.statusCode == http.StatusBadRequest:
				assert.Contains(t, string(got), http.StatusText(http.StatusBadRequest))
			default:
				assert.Empty(t, got)
			}
		})
	}
}
