package types

// SearchSource identifies which retrieval path produced a result.
type SearchSource string

const (
	SourceVector SearchSource = "vector"
	SourceText   SearchSource = "text"
	SourceHybrid SearchSource = "hybrid"
)

// SearchResult represents a single search result with relevance information.
type SearchResult struct {
	// Identification
	ChunkID int64
	Rank    int // Position in result set (1-based)

	// Scoring. Vector and text scores are normalized similarities plus any
	// keyword boosts; hybrid scores are RRF sums and live on a smaller scale.
	Score  float64
	Source SearchSource

	// Hydrated row
	Chunk *Chunk
}

// Validate checks if the search result is valid.
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == 0 {
		return ErrInvalidChunkID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.Score < 0 {
		return ErrInvalidScore
	}

	if sr.Chunk == nil {
		return ErrMissingChunk
	}

	return nil
}
