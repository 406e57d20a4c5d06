package integration

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dshills/gorag/internal/embedder"
)

// errMockFailure is returned by a mock embedder that has been switched
// into failure mode.
var errMockFailure = errors.New("mock embedder failure")

// MockEmbedder is a deterministic offline embedder for integration tests.
// Vectors derive from the SHA-256 digest of the text, so identical text
// always embeds to the identical unit vector and no network is involved.
type MockEmbedder struct {
	dimension int

	mu   sync.Mutex
	fail bool

	embedCalls atomic.Int64
	batchCalls atomic.Int64
}

// NewMockEmbedder creates a mock embedder producing vectors of the given
// dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

// SetFail switches failure mode on or off. While on, every generate call
// returns errMockFailure.
func (m *MockEmbedder) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *MockEmbedder) failing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail
}

// EmbedCalls returns how many single-embedding calls have been made.
func (m *MockEmbedder) EmbedCalls() int64 { return m.embedCalls.Load() }

// BatchCalls returns how many batch calls have been made.
func (m *MockEmbedder) BatchCalls() int64 { return m.batchCalls.Load() }

// vectorFor derives the unit vector for a text. The digest is re-hashed
// whenever more bytes are needed, so any dimension works.
func (m *MockEmbedder) vectorFor(text string) []float32 {
	vector := make([]float32, m.dimension)
	sum := sha256.Sum256([]byte(text))
	for i := 0; i < m.dimension; i++ {
		if i > 0 && i%sha256.Size == 0 {
			sum = sha256.Sum256(sum[:])
		}
		vector[i] = float32(sum[i%sha256.Size]) / 255.0
	}
	return embedder.NormalizeVector(vector)
}

// GenerateEmbedding implements embedder.Embedder.
func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.embedCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.failing() {
		return nil, errMockFailure
	}
	if err := embedder.ValidateRequest(req); err != nil {
		return nil, err
	}
	return &embedder.Embedding{
		Vector:    m.vectorFor(req.Text),
		Dimension: m.dimension,
		Provider:  m.Provider(),
		Model:     m.Model(),
		Hash:      embedder.ComputeHash(req.Text),
	}, nil
}

// GenerateBatch implements embedder.Embedder.
func (m *MockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.batchCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.failing() {
		return nil, errMockFailure
	}
	if err := embedder.ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = &embedder.Embedding{
			Vector:    m.vectorFor(text),
			Dimension: m.dimension,
			Provider:  m.Provider(),
			Model:     m.Model(),
			Hash:      embedder.ComputeHash(text),
		}
	}
	return &embedder.BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   m.Provider(),
		Model:      m.Model(),
	}, nil
}

// Dimension implements embedder.Embedder.
func (m *MockEmbedder) Dimension() int { return m.dimension }

// Provider implements embedder.Embedder.
func (m *MockEmbedder) Provider() string { return "mock" }

// Model implements embedder.Embedder.
func (m *MockEmbedder) Model() string { return "mock-embeddings" }

// Close implements embedder.Embedder.
func (m *MockEmbedder) Close() error { return nil }
