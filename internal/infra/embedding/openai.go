package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"planet-cf/internal/resilience/circuitbreaker"
	"planet-cf/internal/resilience/retry"
	"planet-cf/internal/utils/text"
)

// maxInputRunes caps the text sent to the API. Embedding models have token
// limits around 8k; the pipeline already bounds its inputs, this is the
// last line.
const maxInputRunes = 8000

// ErrDisabled is returned by Embed when the vector path is configured off.
var ErrDisabled = errors.New("embedding disabled")

// OpenAI embeds text via the OpenAI embeddings API with circuit breaker,
// retry, and rate limiting. Safe for concurrent use; the rate limiter is
// shared across all callers of one instance.
type OpenAI struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	limiter        *rate.Limiter
	cfg            *Config
}

// NewOpenAI creates the embedding client.
func NewOpenAI(cfg *Config) *OpenAI {
	slog.Info("Initialized OpenAI embedding client",
		slog.Bool("enabled", cfg.Enabled),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", cfg.Dimensions))

	return &OpenAI{
		client:         openai.NewClient(cfg.APIKey),
		circuitBreaker: circuitbreaker.New(circuitbreaker.EmbeddingAPIConfig()),
		retryConfig:    retry.EmbeddingAPIConfig(),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:            cfg,
	}
}

// Enabled reports whether the vector path is on.
func (o *OpenAI) Enabled() bool { return o.cfg.Enabled }

// Model returns the configured model identifier.
func (o *OpenAI) Model() string { return o.cfg.Model }

// Dimensions returns the configured vector width.
func (o *OpenAI) Dimensions() int { return o.cfg.Dimensions }

// Embed returns the vector for the given text. The call is rate limited,
// executed through the circuit breaker, and retried on transient API
// failures within the configured timeout.
func (o *OpenAI) Embed(ctx context.Context, input string) ([]float32, error) {
	if !o.cfg.Enabled {
		return nil, ErrDisabled
	}

	input = text.TruncateRunes(input, maxInputRunes)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("Embed: rate limiter: %w", err)
	}

	var vector []float32
	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		cbResult, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doEmbed(ctx, input)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("embedding api circuit breaker open, request rejected",
					slog.String("service", "embedding-api"),
					slog.String("state", o.circuitBreaker.State().String()))
				return fmt.Errorf("embedding api unavailable: circuit breaker open")
			}
			return err
		}
		vector = cbResult.([]float32)
		return nil
	})
	if retryErr != nil {
		return nil, fmt.Errorf("embedding failed after retries: %w", retryErr)
	}
	return vector, nil
}

// doEmbed performs the actual API call without retry or circuit breaker.
// API errors are translated to retry.HTTPError so the retry layer can tell
// a 429 or 5xx from a permanent 4xx.
func (o *OpenAI) doEmbed(ctx context.Context, input string) ([]float32, error) {
	start := time.Now()

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{input},
		Model:      openai.EmbeddingModel(o.cfg.Model),
		Dimensions: o.cfg.Dimensions,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			return nil, &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
			return nil, &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
		}
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	vector := resp.Data[0].Embedding
	if len(vector) != o.cfg.Dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(vector), o.cfg.Dimensions)
	}

	slog.DebugContext(ctx, "embedding created",
		slog.Int("input_runes", text.CountRunes(input)),
		slog.Int("dimensions", len(vector)),
		slog.Duration("duration", time.Since(start)))

	return vector, nil
}
