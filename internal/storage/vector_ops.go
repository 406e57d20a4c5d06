package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// VectorResult is one hit from vector similarity search. Similarity is
// 1/(1+d) of the cosine distance, so it falls in (0, 1] with 1 meaning
// identical direction.
type VectorResult struct {
	ChunkID    int64
	Similarity float64
}

// TextResult is one hit from full-text search. Score is the BM25 rank
// normalized into (0, 1].
type TextResult struct {
	ChunkID int64
	Score   float64
}

// SearchVector returns the chunks nearest to queryVector, best first. The
// cgo build computes distance inside SQLite via vec_distance_cosine; the
// purego build loads the vectors and ranks in Go. Stored vectors whose
// dimension differs from the query are skipped.
func (s *Store) SearchVector(ctx context.Context, queryVector []float32, limit int) ([]VectorResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	if VectorExtensionAvailable {
		return s.searchVectorOptimized(ctx, queryVector, limit)
	}
	return s.searchVectorFallback(ctx, queryVector, limit)
}

// searchVectorOptimized ranks by cosine distance at the database layer.
func (s *Store) searchVectorOptimized(ctx context.Context, queryVector []float32, limit int) ([]VectorResult, error) {
	query := `
		SELECT chunk_id, vec_distance_cosine(vector, ?) AS distance
		FROM chunk_embeddings
		WHERE dimension = ?
		ORDER BY distance
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, serializeVector(queryVector), len(queryVector), limit)
	if err != nil {
		return nil, storeUnavailable(fmt.Errorf("failed to execute vector search: %w", err))
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var chunkID int64
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, VectorResult{
			ChunkID:    chunkID,
			Similarity: 1.0 / (1.0 + distance),
		})
	}
	return results, rows.Err()
}

// searchVectorFallback loads every stored vector and ranks by cosine
// similarity computed in Go. This is the purego path; both paths produce
// scores in the same 1/(1+distance) space.
func (s *Store) searchVectorFallback(ctx context.Context, queryVector []float32, limit int) ([]VectorResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, vector FROM chunk_embeddings`)
	if err != nil {
		return nil, storeUnavailable(fmt.Errorf("failed to query embeddings: %w", err))
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0, 256)
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue
		}

		distance := 1.0 - cosineSimilarity(queryVector, vector)
		candidates = append(candidates, candidate{
			chunkID: chunkID,
			score:   1.0 / (1.0 + distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{ChunkID: candidates[i].chunkID, Similarity: candidates[i].score}
	}
	return results, nil
}

// SearchText runs an FTS5 MATCH over chunk content and returns hits best
// first, BM25 ranks normalized into (0, 1]. A match expression FTS5
// cannot parse surfaces ErrInvalidMatch; callers that built an aggressive
// expression can rebuild a simpler one and retry. Other failures are
// returned as-is.
func (s *Store) SearchText(ctx context.Context, match string, limit int) ([]TextResult, error) {
	if strings.TrimSpace(match) == "" {
		return nil, fmt.Errorf("empty match expression")
	}
	if limit <= 0 {
		return []TextResult{}, nil
	}

	query := `
		SELECT rowid, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, match, limit)
	if err != nil {
		if isMatchSyntaxErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMatch, err)
		}
		return nil, storeUnavailable(fmt.Errorf("failed to execute text search: %w", err))
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var result TextResult
		var bm25 float64
		if err := rows.Scan(&result.ChunkID, &bm25); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		// BM25 from FTS5 is negative, lower is better. Normalize into
		// (0, 1] so text and vector scores live on comparable scales.
		result.Score = 1.0 / (1.0 + math.Abs(bm25)/50.0)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		if isMatchSyntaxErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMatch, err)
		}
		return nil, err
	}
	return results, nil
}

// isMatchSyntaxErr reports whether err is FTS5 rejecting the MATCH
// expression itself, as opposed to the query failing operationally.
func isMatchSyntaxErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "malformed MATCH") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unterminated string")
}

// candidate pairs a chunk with its similarity score during ranking
type candidate struct {
	chunkID int64
	score   float64
}

// sortCandidates orders candidates by score descending, chunk ID as the
// tie-break so equal scores rank deterministically.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
