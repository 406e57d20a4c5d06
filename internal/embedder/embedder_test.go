package embedder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gorag/pkg/types"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.text))
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
		assert.NotEqual(t, ComputeHash("test"), ComputeHash("test2"))
	})
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "hello"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	assert.NoError(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", "b"}}))

	err := ValidateBatchRequest(BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", "", "c"}})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "index 1")
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, checkDimension([]float32{1, 2, 3}, 3, "test"))
	assert.NoError(t, checkDimension([]float32{1, 2, 3}, 0, "test"))

	err := checkDimension([]float32{1, 2, 3}, 4, "test")
	require.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "returned 3, want 4")
}

func newTestEmbedding(hash string) *Embedding {
	return &Embedding{
		Vector:    []float32{0.1, 0.2, 0.3},
		Dimension: 3,
		Provider:  ProviderLocal,
		Model:     "test-model",
		Hash:      hash,
	}
}

func TestCache(t *testing.T) {
	t.Run("miss", func(t *testing.T) {
		cache := NewCache(10)
		emb, ok := cache.Get("absent")
		assert.False(t, ok)
		assert.Nil(t, emb)
	})

	t.Run("set and get", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h1", newTestEmbedding("h1"))

		emb, ok := cache.Get("h1")
		require.True(t, ok)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
		assert.Equal(t, "h1", emb.Hash)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("get returns isolated copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h1", newTestEmbedding("h1"))

		first, ok := cache.Get("h1")
		require.True(t, ok)
		first.Vector[0] = 99

		second, ok := cache.Get("h1")
		require.True(t, ok)
		assert.Equal(t, float32(0.1), second.Vector[0])
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", newTestEmbedding("a"))
		cache.Set("b", newTestEmbedding("b"))
		cache.Set("c", newTestEmbedding("c"))

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("a")
		assert.False(t, ok, "oldest entry should be evicted")
		_, ok = cache.Get("c")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h1", newTestEmbedding("h1"))
		cache.Set("h2", newTestEmbedding("h2"))

		cache.Clear()
		assert.Equal(t, 0, cache.Size())
		_, ok := cache.Get("h1")
		assert.False(t, ok)
	})

	t.Run("non-positive size falls back to default", func(t *testing.T) {
		cache := NewCache(0)
		require.NotNil(t, cache)
		cache.Set("h1", newTestEmbedding("h1"))
		_, ok := cache.Get("h1")
		assert.True(t, ok)
	})
}

func TestNormalizeVector(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := NormalizeVector([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := NormalizeVector([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("input not mutated", func(t *testing.T) {
		in := []float32{3, 4}
		_ = NormalizeVector(in)
		assert.Equal(t, []float32{3, 4}, in)
	})
}

func TestCacheFromConfig(t *testing.T) {
	assert.Nil(t, cacheFromConfig(Config{CacheSize: 0}))
	assert.Nil(t, cacheFromConfig(Config{CacheSize: -1}))
	assert.NotNil(t, cacheFromConfig(Config{CacheSize: 5}))
}

func TestRegistry(t *testing.T) {
	t.Run("builtin providers registered", func(t *testing.T) {
		names := Providers()
		for _, want := range []string{ProviderLocal, ProviderOllama, ProviderOpenAI, ProviderSiliconFlow, ProviderVoyage} {
			assert.Contains(t, names, want)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "no-such-provider"})
		require.ErrorIs(t, err, ErrUnknownProvider)
		assert.Contains(t, err.Error(), "registered:")
	})

	t.Run("empty provider selects ollama", func(t *testing.T) {
		emb, err := New(Config{})
		require.NoError(t, err)
		defer func() { _ = emb.Close() }()
		assert.Equal(t, ProviderOllama, emb.Provider())
	})

	t.Run("name is case-insensitive", func(t *testing.T) {
		emb, err := New(Config{Provider: "LOCAL"})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		name := fmt.Sprintf("dup-%d", len(Providers()))
		Register(name, NewLocalProvider)
		assert.Panics(t, func() {
			Register(name, NewLocalProvider)
		})
	})

	t.Run("nil factory panics", func(t *testing.T) {
		assert.Panics(t, func() {
			Register("nil-factory", nil)
		})
	})
}
