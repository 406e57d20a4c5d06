package types

import (
	"crypto/sha256"
	"errors"
	"time"
)

// MetadataOrderKey is the chunk metadata key carrying the chunk's position
// within its document. Stored in metadata rather than a column so callers
// can attach arbitrary ordering-adjacent context without schema changes.
const MetadataOrderKey = "order"

// Chunk represents a token-bounded slice of a document, stored alongside its
// embedding vector and full-text index entry.
type Chunk struct {
	// Identification
	ID         int64
	DocumentID int64

	// Content
	Content     string
	ContentHash [32]byte // SHA-256 hash for deduplication
	Metadata    map[string]interface{}

	// Denormalized document fields, populated on reads that join documents.
	DocumentURI      string
	DocumentMetadata map[string]interface{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order returns the chunk's position within its document, or -1 when the
// metadata does not carry one. JSON round-trips numbers as float64, so both
// forms are accepted.
func (c *Chunk) Order() int {
	if c.Metadata == nil {
		return -1
	}
	switch v := c.Metadata[MetadataOrderKey].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}

// SetOrder records the chunk's position within its document.
func (c *Chunk) SetOrder(n int) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]interface{})
	}
	c.Metadata[MetadataOrderKey] = n
}

// ComputeContentHash computes the SHA-256 hash of the chunk content.
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// Validate checks if the chunk is well formed.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.DocumentID == 0 {
		return errors.New("document ID is required")
	}
	return nil
}
