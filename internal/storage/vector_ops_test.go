package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.75, 0}
	assert.Equal(t, vec, deserializeVector(serializeVector(vec)))

	assert.Empty(t, serializeVector(nil))
	assert.Empty(t, deserializeVector(nil))
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		v := []float32{0.3, 0.4, 0.5}
		assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
	})

	t.Run("orthogonal", func(t *testing.T) {
		a := []float32{1, 0, 0}
		b := []float32{0, 1, 0}
		assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
	})

	t.Run("opposite", func(t *testing.T) {
		a := []float32{1, 2, 3}
		b := []float32{-1, -2, -3}
		assert.InDelta(t, -1.0, cosineSimilarity(a, b), 1e-9)
	})

	t.Run("zero vector", func(t *testing.T) {
		a := []float32{0, 0, 0}
		b := []float32{1, 2, 3}
		assert.Equal(t, 0.0, cosineSimilarity(a, b))
	})

	t.Run("length mismatch", func(t *testing.T) {
		a := []float32{1, 2}
		b := []float32{1, 2, 3}
		assert.Equal(t, 0.0, cosineSimilarity(a, b))
	})
}

func TestSearchVector(t *testing.T) {
	store, emb := setupTestStore(t)
	ctx := context.Background()

	emb.vectors["exact"] = []float32{1, 0, 0, 0}
	emb.vectors["near"] = []float32{0.9, 0.1, 0, 0}
	emb.vectors["far"] = []float32{0, 1, 0, 0}

	doc, err := store.CreateDocument(ctx, "file:///vectors.md", nil)
	require.NoError(t, err)

	ids := make(map[string]int64, 3)
	for _, content := range []string{"exact", "near", "far"} {
		chunk, err := store.CreateChunk(ctx, doc.ID, content, nil)
		require.NoError(t, err)
		ids[content] = chunk.ID
	}

	query := []float32{1, 0, 0, 0}

	results, err := store.SearchVector(ctx, query, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, ids["exact"], results[0].ChunkID)
	assert.Equal(t, ids["near"], results[1].ChunkID)
	assert.Equal(t, ids["far"], results[2].ChunkID)

	// Scores live in the 1/(1+distance) space on both build paths: a
	// perfect match scores 1.0 and an orthogonal vector 0.5.
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.5, results[2].Similarity, 1e-6)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.Greater(t, results[1].Similarity, results[2].Similarity)

	t.Run("limit truncates", func(t *testing.T) {
		results, err := store.SearchVector(ctx, query, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, ids["exact"], results[0].ChunkID)
		assert.Equal(t, ids["near"], results[1].ChunkID)
	})

	t.Run("zero limit", func(t *testing.T) {
		results, err := store.SearchVector(ctx, query, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("empty query vector", func(t *testing.T) {
		_, err := store.SearchVector(ctx, nil, 10)
		assert.Error(t, err)
	})

	t.Run("dimension mismatch skips stored vectors", func(t *testing.T) {
		results, err := store.SearchVector(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearchText(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	doc, err := store.CreateDocument(ctx, "file:///foxes.md", nil)
	require.NoError(t, err)

	sparse, err := store.CreateChunk(ctx, doc.ID, "the quick brown fox", nil)
	require.NoError(t, err)
	dense, err := store.CreateChunk(ctx, doc.ID, "fox fox everywhere fox", nil)
	require.NoError(t, err)
	_, err = store.CreateChunk(ctx, doc.ID, "no relevant terms here", nil)
	require.NoError(t, err)

	results, err := store.SearchText(ctx, "fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Higher term frequency ranks first; scores are normalized into (0, 1].
	assert.Equal(t, dense.ID, results[0].ChunkID)
	assert.Equal(t, sparse.ID, results[1].ChunkID)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	t.Run("phrase match", func(t *testing.T) {
		results, err := store.SearchText(ctx, `"quick brown"`, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, sparse.ID, results[0].ChunkID)
	})

	t.Run("no hits", func(t *testing.T) {
		results, err := store.SearchText(ctx, "zebra", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("zero limit", func(t *testing.T) {
		results, err := store.SearchText(ctx, "fox", 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("empty match expression", func(t *testing.T) {
		_, err := store.SearchText(ctx, "   ", 10)
		assert.Error(t, err)
	})

	t.Run("invalid match expression", func(t *testing.T) {
		_, err := store.SearchText(ctx, "(", 10)
		assert.ErrorIs(t, err, ErrInvalidMatch)
	})
}

func TestSortCandidates(t *testing.T) {
	candidates := []candidate{
		{chunkID: 3, score: 0.5},
		{chunkID: 1, score: 0.9},
		{chunkID: 2, score: 0.5},
	}

	sortCandidates(candidates)

	assert.Equal(t, int64(1), candidates[0].chunkID)
	assert.Equal(t, int64(2), candidates[1].chunkID)
	assert.Equal(t, int64(3), candidates[2].chunkID)
}
