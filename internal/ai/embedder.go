package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// EmbeddingProvider represents supported embedding providers.
type EmbeddingProvider string

const (
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
)

// Default endpoints and model per provider.
const (
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	DefaultOllamaEndpoint = "http://localhost:11434"

	// DefaultEmbeddingModel is the OpenAI embedding model used for
	// message similarity.
	DefaultEmbeddingModel = "text-embedding-ada-002"
)

// EmbedderConfig holds embedding client configuration.
type EmbedderConfig struct {
	Provider    EmbeddingProvider // openai (default) or ollama
	APIEndpoint string            // Base URL (defaults per provider)
	APIKey      string            // API key (openai only; falls back to OPENAI_API_KEY env var)
	Model       string            // Embedding model name (default: text-embedding-ada-002)
	Retry       RetryConfig       // Retry configuration (uses defaults if not specified)
}

// Embedder turns text into embedding vectors over the provider's HTTP API.
//
// Vectors are computed per call and never cached: a later call for the same
// text always reflects the provider's current behavior. The only collapsing
// is in-flight, where concurrent requests for identical text share one call.
type Embedder struct {
	provider   EmbeddingProvider
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	caller     *caller
	group      singleflight.Group
}

// NewEmbedder creates an embedding client for the configured provider.
func NewEmbedder(cfg *EmbedderConfig) (*Embedder, error) {
	if cfg == nil {
		cfg = &EmbedderConfig{}
	}

	provider := cfg.Provider
	if provider == "" {
		provider = EmbeddingProviderOpenAI
	}

	endpoint := strings.TrimRight(cfg.APIEndpoint, "/")
	apiKey := cfg.APIKey

	switch provider {
	case EmbeddingProviderOpenAI:
		if endpoint == "" {
			endpoint = DefaultOpenAIEndpoint
		}
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
			if apiKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY not set")
			}
		}
	case EmbeddingProviderOllama:
		if endpoint == "" {
			endpoint = DefaultOllamaEndpoint
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	return &Embedder{
		provider: provider,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		caller: newCaller("embedder", cfg.Retry),
	}, nil
}

// Embed returns the embedding vector for the text. Failures after retries
// wrap ErrEmbeddingFailed.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrEmbeddingFailed)
	}

	v, err, _ := e.group.Do(text, func() (interface{}, error) {
		var embedding []float64
		err := e.caller.do(ctx, "embedding", func(attemptCtx context.Context) error {
			vec, reqErr := e.fetchEmbedding(attemptCtx, text)
			if reqErr != nil {
				return reqErr
			}
			embedding = vec
			return nil
		})
		if err != nil {
			return nil, err
		}
		return embedding, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return v.([]float64), nil
}

// HealthCheck reports whether the embedder will accept requests.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return e.caller.health()
}

func (e *Embedder) fetchEmbedding(ctx context.Context, text string) ([]float64, error) {
	switch e.provider {
	case EmbeddingProviderOpenAI:
		return e.embedOpenAI(ctx, text)
	case EmbeddingProviderOllama:
		return e.embedOllama(ctx, text)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", e.provider)
	}
}

// =====================================================
// OpenAI Integration
// =====================================================

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (e *Embedder) embedOpenAI(ctx context.Context, text string) ([]float64, error) {
	reqBody := openAIEmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(body))
	}

	var openAIResp openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&openAIResp); err != nil {
		return nil, err
	}

	if openAIResp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Data) == 0 || len(openAIResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in OpenAI response")
	}

	return openAIResp.Data[0].Embedding, nil
}

// =====================================================
// Ollama Integration (Local)
// =====================================================

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (e *Embedder) embedOllama(ctx context.Context, text string) ([]float64, error) {
	reqBody := ollamaEmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama returned %d: %s", resp.StatusCode, string(body))
	}

	var ollamaResp ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, err
	}

	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("Ollama error: %s", ollamaResp.Error)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in Ollama response")
	}

	return ollamaResp.Embedding, nil
}
