package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"
)

func init() {
	Register(ProviderOllama, NewOllamaProvider)
}

// ollamaBatchWorkers bounds concurrent requests in GenerateBatch. Ollama's
// embeddings endpoint takes one prompt per call, so batching is client-side.
const ollamaBatchWorkers = 4

// OllamaProvider implements Embedder against a local or remote Ollama
// server. This is the default provider; it needs no API key.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

// NewOllamaProvider creates an Ollama-backed embedder. The base URL falls
// back to OLLAMA_BASE_URL and then to localhost.
func NewOllamaProvider(cfg Config) (Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv(EnvOllamaBaseURL)
	}
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = OllamaDimension
	}

	return &OllamaProvider{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: apiTimeout,
		},
		cache: cacheFromConfig(cfg),
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if o.cache != nil {
		if emb, ok := o.cache.Get(hash); ok {
			return emb, nil
		}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	config := DefaultRetryConfig()
	vector, err := retryWithBackoff(ctx, config, func() ([]float32, error) {
		return o.callAPI(ctx, req.Text, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	if err := checkDimension(vector, o.dimension, ProviderOllama); err != nil {
		return nil, err
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  ProviderOllama,
		Model:     model,
		Hash:      hash,
	}

	if o.cache != nil {
		o.cache.Set(hash, emb)
	}

	return emb, nil
}

// GenerateBatch fans the texts out over a bounded worker group. Order is
// preserved; the first failure cancels the remaining work.
func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	embeddings := make([]*Embedding, len(req.Texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaBatchWorkers)
	for i, text := range req.Texts {
		g.Go(func() error {
			emb, err := o.GenerateEmbedding(gctx, EmbeddingRequest{Text: text, Model: req.Model})
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      o.model,
	}, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, text, model string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model":  model,
		"prompt": text,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for model %s", model)
	}

	return apiResp.Embedding, nil
}

func (o *OllamaProvider) Dimension() int {
	return o.dimension
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
