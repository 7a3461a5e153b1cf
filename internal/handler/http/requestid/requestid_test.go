package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "with request ID",
			ctx:      WithRequestID(context.Background(), "test-id-123"),
			expected: "test-id-123",
		},
		{
			name:     "without request ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "with invalid type in context",
			ctx:      context.WithValue(context.Background(), RequestIDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromContext(tt.ctx))
		})
	}
}

// captureMiddleware runs one request through Middleware and returns the
// ID seen by the handler plus the recorder.
func captureMiddleware(t *testing.T, incomingID string) (string, *httptest.ResponseRecorder) {
	t.Helper()

	var capturedID string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if incomingID != "" {
		req.Header.Set(RequestIDHeader, incomingID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return capturedID, rec
}

func TestMiddleware_KeepsWellFormedRequestID(t *testing.T) {
	existingID := "gateway-7f3a2b_001"

	capturedID, rec := captureMiddleware(t, existingID)

	assert.Equal(t, existingID, capturedID)
	assert.Equal(t, existingID, rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_GeneratesNewRequestID(t *testing.T) {
	capturedID, rec := captureMiddleware(t, "")

	assert.NotEmpty(t, capturedID)
	_, err := uuid.Parse(capturedID)
	assert.NoError(t, err, "generated ID should be a valid UUID")
	assert.Equal(t, capturedID, rec.Header().Get(RequestIDHeader))
}

func TestMiddleware_ReplacesMalformedRequestID(t *testing.T) {
	tests := []struct {
		name       string
		incomingID string
	}{
		{
			name:       "log injection attempt",
			incomingID: "abc\nfake log line",
		},
		{
			name:       "spaces",
			incomingID: "id with spaces",
		},
		{
			name:       "control characters",
			incomingID: "id\x00null",
		},
		{
			name:       "too long",
			incomingID: strings.Repeat("a", 65),
		},
		{
			name:       "non-ascii",
			incomingID: "идентификатор",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capturedID, rec := captureMiddleware(t, tt.incomingID)

			assert.NotEqual(t, tt.incomingID, capturedID)
			_, err := uuid.Parse(capturedID)
			assert.NoError(t, err, "malformed incoming ID should be replaced with a UUID")
			assert.Equal(t, capturedID, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestMiddleware_MaxLengthIDIsKept(t *testing.T) {
	boundaryID := strings.Repeat("a", maxIncomingIDLength)

	capturedID, _ := captureMiddleware(t, boundaryID)

	assert.Equal(t, boundaryID, capturedID)
}

func TestMiddleware_MultipleRequests(t *testing.T) {
	// Each request without an incoming ID gets a unique one
	requestIDs := make(map[string]bool)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestIDs[FromContext(r.Context())] = true
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	assert.Equal(t, 10, len(requestIDs))
}

func TestValidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"uuid", "c9a6e1a2-4a7b-41d0-9b3e-3f2a1c5d8e7f", true},
		{"short token", "abc", true},
		{"underscore and dash", "edge_proxy-42", true},
		{"empty", "", false},
		{"newline", "a\nb", false},
		{"exactly max length", strings.Repeat("x", 64), true},
		{"over max length", strings.Repeat("x", 65), false},
		{"percent encoding", "a%20b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validID(tt.id))
		})
	}
}

func TestRequestIDHeader_Constant(t *testing.T) {
	assert.Equal(t, "X-Request-ID", RequestIDHeader)
}
