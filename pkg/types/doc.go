// Package types provides shared type definitions for gorag.
//
// This package defines the domain types used across components: documents,
// chunks, search results, and the cross-cutting error taxonomy.
//
// # Core Types
//
// Document represents a registered source text. Chunks belong to exactly one
// document and are removed with it:
//
//	doc := &types.Document{
//	    URI:      "docs/install.md",
//	    Metadata: map[string]interface{}{"lang": "en"},
//	}
//
// Chunk represents a token-bounded slice of a document. Its position within
// the document travels in metadata under types.MetadataOrderKey:
//
//	chunk := &types.Chunk{
//	    DocumentID: doc.ID,
//	    Content:    text,
//	}
//	chunk.SetOrder(0)
//
// # Error Taxonomy
//
// Four sentinels classify every cross-component failure:
//
//	types.ErrNotFound           // row does not exist
//	types.ErrEmbeddingFailed    // provider failed; write unit aborted
//	types.ErrDimensionMismatch  // vector length disagrees with config; fatal
//	types.ErrStoreUnavailable   // backend unreachable; never retried
//
// Components wrap these with fmt.Errorf("...: %w", err) so callers can branch
// with errors.Is regardless of how deep the failure originated.
//
// # Search Results
//
// SearchResult pairs a hydrated chunk with relevance scoring:
//
//	result := &types.SearchResult{
//	    ChunkID: 123,
//	    Rank:    1,
//	    Score:   0.92,
//	    Source:  types.SourceHybrid,
//	    Chunk:   chunk,
//	}
//
// Vector and text scores are normalized similarities plus keyword boosts.
// Hybrid scores are reciprocal rank fusion sums; they are comparable to each
// other but not to the single-path scores.
package types
