package types

import "errors"

// Cross-cutting failure taxonomy. Components wrap these with fmt.Errorf and
// %w; callers branch with errors.Is.
var (
	// ErrNotFound indicates the requested document or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingFailed indicates the embedding provider failed. The write
	// unit that needed the vector is aborted; no partial artifacts remain.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates a vector's length disagrees with the
	// configured dimension. Vectors are never truncated or padded to fit.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreUnavailable indicates the storage backend cannot be reached.
	// Operations fail immediately; nothing retries this internally.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Validation errors for domain types
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScore   = errors.New("score cannot be negative")
	ErrMissingChunk   = errors.New("chunk is required")
	ErrEmptyContent   = errors.New("content cannot be empty")
)
