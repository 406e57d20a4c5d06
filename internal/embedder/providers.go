package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Provider configuration
const (
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"
	ProviderSiliconFlow = "siliconflow"
	ProviderVoyage      = "voyage"
	ProviderLocal       = "local"

	// Default models
	DefaultOllamaModel      = "mxbai-embed-large"
	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultSiliconFlowModel = "BAAI/bge-m3"
	DefaultVoyageModel      = "voyage-3.5"

	// Dimensions
	OllamaDimension      = 1024
	OpenAIDimension      = 1536
	SiliconFlowDimension = 1024
	VoyageDimension      = 1024
	LocalDimension       = 384

	// Endpoints
	DefaultOllamaBaseURL      = "http://localhost:11434"
	DefaultOpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultSiliconFlowBaseURL = "https://api.siliconflow.cn/v1"
	DefaultVoyageBaseURL      = "https://api.voyageai.com/v1"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	apiTimeout = 30 * time.Second
)

func init() {
	Register(ProviderOpenAI, NewOpenAIProvider)
	Register(ProviderSiliconFlow, NewSiliconFlowProvider)
	Register(ProviderVoyage, NewVoyageProvider)
}

// restProvider implements Embedder against OpenAI-compatible embedding
// endpoints. OpenAI, SiliconFlow, and Voyage accept the same request shape
// and answer with the same response shape, so one implementation serves all
// three; only name, endpoint, and defaults differ.
type restProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

type restDefaults struct {
	baseURL   string
	model     string
	dimension int
	keyEnv    string
}

func newRESTProvider(name string, cfg Config, def restDefaults) (Embedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(def.keyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, def.keyEnv)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = def.baseURL
	}
	model := cfg.Model
	if model == "" {
		model = def.model
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = def.dimension
	}

	return &restProvider{
		name:      name,
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: apiTimeout,
		},
		cache: cacheFromConfig(cfg),
	}, nil
}

// NewOpenAIProvider creates an embedder backed by the OpenAI embeddings API.
func NewOpenAIProvider(cfg Config) (Embedder, error) {
	return newRESTProvider(ProviderOpenAI, cfg, restDefaults{
		baseURL:   DefaultOpenAIBaseURL,
		model:     DefaultOpenAIModel,
		dimension: OpenAIDimension,
		keyEnv:    EnvOpenAIAPIKey,
	})
}

// NewSiliconFlowProvider creates an embedder backed by the SiliconFlow API.
func NewSiliconFlowProvider(cfg Config) (Embedder, error) {
	return newRESTProvider(ProviderSiliconFlow, cfg, restDefaults{
		baseURL:   DefaultSiliconFlowBaseURL,
		model:     DefaultSiliconFlowModel,
		dimension: SiliconFlowDimension,
		keyEnv:    EnvSiliconFlowAPIKey,
	})
}

// NewVoyageProvider creates an embedder backed by the Voyage AI API.
func NewVoyageProvider(cfg Config) (Embedder, error) {
	return newRESTProvider(ProviderVoyage, cfg, restDefaults{
		baseURL:   DefaultVoyageBaseURL,
		model:     DefaultVoyageModel,
		dimension: VoyageDimension,
		keyEnv:    EnvVoyageAPIKey,
	})
}

func (p *restProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	// Use the batch path so single and batch requests behave identically
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *restProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	config := DefaultRetryConfig()
	embeddings, err := retryWithBackoff(ctx, config, func() ([]*Embedding, error) {
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	for _, emb := range embeddings {
		if err := checkDimension(emb.Vector, p.dimension, p.name); err != nil {
			return nil, err
		}
	}

	if p.cache != nil {
		for i, emb := range embeddings {
			hash := ComputeHash(req.Texts[i])
			emb.Hash = hash
			p.cache.Set(hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *restProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		// Client errors other than rate limiting will not heal on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}

	return embeddings, nil
}

func (p *restProvider) Dimension() int {
	return p.dimension
}

func (p *restProvider) Provider() string {
	return p.name
}

func (p *restProvider) Model() string {
	return p.model
}

func (p *restProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
