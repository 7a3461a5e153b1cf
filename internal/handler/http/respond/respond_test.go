package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// errorBody decodes the {"error": "..."} payload every error helper
// writes.
func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body["error"]
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		data     any
		wantBody string
	}{
		{
			name:     "map payload",
			code:     http.StatusOK,
			data:     map[string]string{"status": "ok"},
			wantBody: `{"status":"ok"}`,
		},
		{
			name: "struct payload",
			code: http.StatusOK,
			data: struct {
				Query string   `json:"query"`
				Hits  []string `json:"hits"`
			}{Query: "postgres", Hits: []string{"Go and pgvector", "Postgres tuning"}},
			wantBody: `{"query":"postgres","hits":["Go and pgvector","Postgres tuning"]}`,
		},
		{
			name:     "nil payload writes no body",
			code:     http.StatusNoContent,
			data:     nil,
			wantBody: "",
		},
		{
			name:     "error status with payload",
			code:     http.StatusBadRequest,
			data:     map[string]string{"error": "bad request"},
			wantBody: `{"error":"bad request"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.code, tt.data)

			if w.Code != tt.code {
				t.Errorf("Code = %d, want %d", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("Body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

// Encoding failures happen after the header is out; status and
// Content-Type must survive them.
func TestJSON_EncodingError(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, make(chan int))

	if w.Code != http.StatusOK {
		t.Errorf("Code = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, errors.New("feed not found"))

	if w.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := errorBody(t, w); got != "feed not found" {
		t.Errorf("error = %q, want %q", got, "feed not found")
	}
}

// Error does not sanitize. Handlers reach for SafeError on anything
// that could carry internals.
func TestError_PassesMessageThrough(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusInternalServerError, errors.New("database connection failed"))

	if got := errorBody(t, w); got != "database connection failed" {
		t.Errorf("error = %q, want the unmasked message", got)
	}
}

func TestSafeError_PassesValidationMessages(t *testing.T) {
	tests := []struct {
		name string
		code int
		msg  string
	}{
		{"missing query param", http.StatusBadRequest, "q query param required: at least 2 characters"},
		{"invalid limit", http.StatusBadRequest, "invalid limit: must be a valid integer"},
		{"unknown feed", http.StatusNotFound, "feed not found"},
		{"empty query", http.StatusBadRequest, "query cannot be empty"},
		{"oversized url", http.StatusBadRequest, "url too long"},
		{"rate limited", http.StatusTooManyRequests, "rate limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SafeError(w, tt.code, errors.New(tt.msg))

			if w.Code != tt.code {
				t.Errorf("Code = %d, want %d", w.Code, tt.code)
			}
			if got := errorBody(t, w); got != tt.msg {
				t.Errorf("error = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestSafeError_MasksInternalErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		err  error
	}{
		{"database failure", http.StatusInternalServerError, errors.New("pq: connection refused")},
		{"broker failure", http.StatusBadGateway, errors.New("redis: connection pool exhausted")},
		{"dsn with password", http.StatusInternalServerError, errors.New("failed to connect: postgres://planet:secret123@db:5432/planet")},
		{"5xx masks even safe-sounding text", http.StatusInternalServerError, errors.New("some error with required keyword")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SafeError(w, tt.code, tt.err)

			if w.Code != tt.code {
				t.Errorf("Code = %d, want %d", w.Code, tt.code)
			}
			if got := errorBody(t, w); got != "internal server error" {
				t.Errorf("error = %q, want the generic message", got)
			}
			if strings.Contains(w.Body.String(), "secret123") {
				t.Error("response leaked credentials")
			}
		})
	}
}

func TestSafeError_NilWritesNothing(t *testing.T) {
	w := httptest.NewRecorder()
	SafeError(w, http.StatusBadRequest, nil)

	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}
