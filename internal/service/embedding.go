package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Embedder is the seam the queue and search path depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// EmbeddingService generates text embeddings via an OpenAI-compatible API.
// It carries no retry logic of its own; callers decide whether a failure is
// retryable.
type EmbeddingService struct {
	client     *resty.Client
	model      string
	apiKey     string
	endpoint   string
	dimensions int
}

// EmbeddingClientConfig holds configuration for the embedding client.
type EmbeddingClientConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingService creates a new embedding client.
func NewEmbeddingService(cfg *EmbeddingClientConfig) *EmbeddingService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = 1536
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		endpoint:   baseURL + "/embeddings",
		dimensions: dimensions,
	}
}

// Model returns the model name being used.
func (s *EmbeddingService) Model() string {
	return s.model
}

// Dimensions returns the configured vector width.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// OpenAI-compatible embeddings API request/response structures
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &EmbeddingServiceError{Err: fmt.Errorf("no embedding returned")}
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, skipping blank inputs.
// The returned slice is positionally aligned with the non-blank inputs.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.apiKey == "" {
		return nil, &EmbeddingServiceError{Err: ErrNoAPIKey}
	}

	inputs := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			inputs = append(inputs, t)
		}
	}
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	req := embeddingRequest{
		Model:      s.model,
		Input:      inputs,
		Dimensions: s.dimensions,
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, &EmbeddingServiceError{Err: fmt.Errorf("failed to call embedding API: %w", err)}
	}

	if httpResp.StatusCode() != 200 {
		if resp.Error != nil {
			return nil, &EmbeddingServiceError{Err: fmt.Errorf("embedding API error: %s", resp.Error.Message)}
		}
		return nil, &EmbeddingServiceError{Err: fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())}
	}

	if len(resp.Data) != len(inputs) {
		return nil, &EmbeddingServiceError{Err: fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(inputs))}
	}

	// Sort by index to ensure correct order
	embeddings := make([][]float32, len(inputs))
	for _, item := range resp.Data {
		if item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}

	return embeddings, nil
}

// ValidateVector checks that a vector has the expected width and that every
// component is a finite number. Callers must validate before persisting.
func ValidateVector(vector []float32, dimensions int) bool {
	if len(vector) != dimensions {
		return false
	}
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
