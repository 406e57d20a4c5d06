package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gorag/pkg/types"
)

type restRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type restEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type restResponse struct {
	Data  []restEmbeddingData `json:"data"`
	Model string              `json:"model"`
}

// newRESTServer answers the OpenAI-compatible embeddings shape. Each input
// text gets a width-4 vector whose first element is its batch position.
func newRESTServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req restRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := restResponse{Model: req.Model + "-served"}
		for i := range req.Input {
			resp.Data = append(resp.Data, restEmbeddingData{
				Embedding: []float32{float32(i), 0, 0, 0},
				Index:     i,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRESTProvider_GenerateBatch(t *testing.T) {
	var calls atomic.Int32
	server := newRESTServer(t, &calls)

	emb, err := New(Config{
		Provider:  ProviderOpenAI,
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Dimension: 4,
	})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	resp, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"first", "second", "third"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)
	assert.Equal(t, int32(1), calls.Load())

	for i, e := range resp.Embeddings {
		assert.Equal(t, float32(i), e.Vector[0], "batch order must be preserved")
		assert.Equal(t, ProviderOpenAI, e.Provider)
		assert.Equal(t, DefaultOpenAIModel+"-served", e.Model)
	}
}

func TestRESTProvider_GenerateEmbedding(t *testing.T) {
	var calls atomic.Int32
	server := newRESTServer(t, &calls)

	emb, err := New(Config{
		Provider:  ProviderOpenAI,
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Dimension: 4,
		CacheSize: 10,
	})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	result, err := emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, result.Vector)
	assert.Equal(t, ComputeHash("hello"), result.Hash)

	// Second request is served from cache.
	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRESTProvider_ModelOverride(t *testing.T) {
	var gotModel atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req restRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel.Store(req.Model)

		_ = json.NewEncoder(w).Encode(restResponse{
			Model: req.Model,
			Data:  []restEmbeddingData{{Embedding: []float32{1, 2, 3, 4}}},
		})
	}))
	defer server.Close()

	emb, err := New(Config{Provider: ProviderVoyage, APIKey: "test-key", BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	resp, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"x"},
		Model: "voyage-large-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "voyage-large-2", gotModel.Load())
	assert.Equal(t, "voyage-large-2", resp.Model)
}

func TestRESTProvider_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	emb, err := New(Config{Provider: ProviderOpenAI, APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	_, err = emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "api error 401")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestRESTProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(restResponse{
			Model: "m",
			Data:  []restEmbeddingData{{Embedding: []float32{1, 0, 0, 0}}},
		})
	}))
	defer server.Close()

	emb, err := New(Config{Provider: ProviderSiliconFlow, APIKey: "test-key", BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	resp, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRESTProvider_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(restResponse{
			Model: "m",
			Data:  []restEmbeddingData{{Embedding: []float32{1, 2, 3}}},
		})
	}))
	defer server.Close()

	emb, err := New(Config{Provider: ProviderOpenAI, APIKey: "test-key", BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	_, err = emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestRESTProvider_BatchTooLarge(t *testing.T) {
	emb, err := New(Config{Provider: ProviderOpenAI, APIKey: "test-key"})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "x"
	}
	_, err = emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestRESTProvider_APIKeyFromEnv(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "env-key")

	emb, err := New(Config{Provider: ProviderOpenAI})
	require.NoError(t, err)
	_ = emb.Close()

	t.Setenv(EnvOpenAIAPIKey, "")
	_, err = New(Config{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestRESTProvider_Defaults(t *testing.T) {
	tests := []struct {
		provider  string
		model     string
		dimension int
	}{
		{ProviderOpenAI, DefaultOpenAIModel, OpenAIDimension},
		{ProviderSiliconFlow, DefaultSiliconFlowModel, SiliconFlowDimension},
		{ProviderVoyage, DefaultVoyageModel, VoyageDimension},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			emb, err := New(Config{Provider: tt.provider, APIKey: "test-key"})
			require.NoError(t, err)
			defer func() { _ = emb.Close() }()

			assert.Equal(t, tt.provider, emb.Provider())
			assert.Equal(t, tt.model, emb.Model())
			assert.Equal(t, tt.dimension, emb.Dimension())
		})
	}
}

// newOllamaServer answers the Ollama embeddings shape, one prompt per call.
// Prompts of the form "text-N" embed to a vector carrying N.
func newOllamaServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		n, _ := strconv.Atoi(strings.TrimPrefix(req.Prompt, "text-"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{float32(n), 1, 0, 0},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaProvider_GenerateEmbedding(t *testing.T) {
	var calls atomic.Int32
	server := newOllamaServer(t, &calls)

	emb, err := New(Config{Provider: ProviderOllama, BaseURL: server.URL, Dimension: 4, CacheSize: 10})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	result, err := emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "text-7"})
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 1, 0, 0}, result.Vector)
	assert.Equal(t, ProviderOllama, result.Provider)
	assert.Equal(t, ComputeHash("text-7"), result.Hash)

	// Cache hit skips the server.
	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "text-7"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaProvider_BaseURLFromEnv(t *testing.T) {
	var calls atomic.Int32
	server := newOllamaServer(t, &calls)
	t.Setenv(EnvOllamaBaseURL, server.URL)

	emb, err := New(Config{Provider: ProviderOllama, Dimension: 4})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "text-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaProvider_Defaults(t *testing.T) {
	emb, err := New(Config{Provider: ProviderOllama})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	assert.Equal(t, ProviderOllama, emb.Provider())
	assert.Equal(t, DefaultOllamaModel, emb.Model())
	assert.Equal(t, OllamaDimension, emb.Dimension())
}

func TestOllamaProvider_GenerateBatch(t *testing.T) {
	var calls atomic.Int32
	server := newOllamaServer(t, &calls)

	emb, err := New(Config{Provider: ProviderOllama, BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	resp, err := emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 10)
	assert.Equal(t, int32(10), calls.Load())

	// Workers run concurrently but results land at their input positions.
	for i, e := range resp.Embeddings {
		require.NotNil(t, e, "embedding %d missing", i)
		assert.Equal(t, float32(i), e.Vector[0], "embedding %d out of order", i)
	}
}

func TestOllamaProvider_BatchPropagatesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if req.Prompt == "bad" {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 0, 0, 0}})
	}))
	defer server.Close()

	emb, err := New(Config{Provider: ProviderOllama, BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	_, err = emb.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"good", "bad"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Contains(t, err.Error(), "embedding text 1")
}

func TestOllamaProvider_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer server.Close()

	emb, err := New(Config{Provider: ProviderOllama, BaseURL: server.URL})
	require.NoError(t, err)
	defer func() { _ = emb.Close() }()

	_, err = emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api error 404")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}
