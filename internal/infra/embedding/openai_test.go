package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"planet-cf/internal/resilience/circuitbreaker"
	"planet-cf/internal/resilience/retry"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("EMBEDDING_ENABLED", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	t.Setenv("EMBEDDING_TIMEOUT_SECONDS", "")
	t.Setenv("EMBEDDING_RPS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 768, cfg.Dimensions)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5.0, cfg.RequestsPerSecond)
}

func TestLoadConfig_DisabledWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_ENABLED", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestLoadConfig_ExplicitDisable(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("EMBEDDING_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("EMBEDDING_DIMENSIONS", "1536")
	t.Setenv("EMBEDDING_TIMEOUT_SECONDS", "10")
	t.Setenv("EMBEDDING_RPS", "2.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-large", cfg.Model)
	assert.Equal(t, 1536, cfg.Dimensions)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric dimensions", key: "EMBEDDING_DIMENSIONS", value: "lots"},
		{name: "zero dimensions", key: "EMBEDDING_DIMENSIONS", value: "0"},
		{name: "oversized dimensions", key: "EMBEDDING_DIMENSIONS", value: "5000"},
		{name: "non-numeric timeout", key: "EMBEDDING_TIMEOUT_SECONDS", value: "fast"},
		{name: "negative rps", key: "EMBEDDING_RPS", value: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "test-key")
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

/* ───────────────────────────── Embed ───────────────────────────── */

// embedServer emulates the embeddings endpoint. handler decides the
// response per call; calls counts attempts.
func embedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// newTestClient builds an OpenAI client against the fake server with
// a fast retry schedule so failure tests finish in milliseconds.
func newTestClient(ts *httptest.Server, dims int) *OpenAI {
	cc := openai.DefaultConfig("test-key")
	cc.BaseURL = ts.URL + "/v1"

	cfg := &Config{
		Enabled:           true,
		APIKey:            "test-key",
		Model:             "text-embedding-3-small",
		Dimensions:        dims,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	return &OpenAI{
		client:         openai.NewClientWithConfig(cc),
		circuitBreaker: circuitbreaker.New(circuitbreaker.EmbeddingAPIConfig()),
		retryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		cfg:     cfg,
	}
}

func writeEmbedding(w http.ResponseWriter, vec []float32) {
	resp := map[string]interface{}{
		"object": "list",
		"data": []map[string]interface{}{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"model": "text-embedding-3-small",
		"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"message": message, "type": "server_error"},
	})
}

func TestEmbed_Success(t *testing.T) {
	var gotBody map[string]interface{}
	ts := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeEmbedding(w, []float32{0.1, 0.2, 0.3})
	})

	o := newTestClient(ts, 3)
	vec, err := o.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-3-small", gotBody["model"])
	assert.Equal(t, []interface{}{"hello world"}, gotBody["input"])
	assert.Equal(t, float64(3), gotBody["dimensions"])
}

func TestEmbed_Disabled(t *testing.T) {
	o := NewOpenAI(&Config{
		Enabled:           false,
		Model:             "text-embedding-3-small",
		Dimensions:        768,
		Timeout:           time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
	})

	_, err := o.Embed(context.Background(), "anything")
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestEmbed_DimensionMismatchNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEmbedding(w, []float32{0.1, 0.2}) // two dims instead of three
	})

	o := newTestClient(ts, 3)
	_, err := o.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	ts := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeAPIError(w, http.StatusInternalServerError, "upstream hiccup")
			return
		}
		writeEmbedding(w, []float32{1, 2, 3})
	})

	o := newTestClient(ts, 3)
	vec, err := o.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbed_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusBadRequest, "bad input")
	})

	o := newTestClient(ts, 3)
	_, err := o.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_ExhaustedRetriesFail(t *testing.T) {
	var calls atomic.Int32
	ts := embedServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusServiceUnavailable, "down")
	})

	o := newTestClient(ts, 3)
	_, err := o.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after retries")
	assert.Equal(t, int32(3), calls.Load())
}
