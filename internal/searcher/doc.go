// Package searcher implements hybrid retrieval combining vector similarity
// and keyword matching over stored chunks.
//
// The searcher provides three search modes:
//   - Hybrid: Combines vector + BM25 keyword search (recommended)
//   - Vector: Pure semantic search using embeddings
//   - Text: BM25 full-text search only
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb, processor, logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "annual general meeting schedule",
//	    Limit: 10,
//	    Mode:  searcher.SearchModeHybrid,
//	})
//
//	for _, result := range resp.Results {
//	    fmt.Printf("[%d] %s (score: %.2f)\n",
//	        result.Rank, result.Chunk.DocumentURI, result.Score)
//	}
//
// # Search Modes
//
// Hybrid Mode (default, recommended):
//
//   - Runs vector and text search concurrently and fuses their rankings
//     with Reciprocal Rank Fusion; one arm may fail as long as the other
//     succeeds
//
//   - Synonym variants of the query contribute extra text candidates
//
//   - Best for most queries (semantic + exact matching)
//
// Vector Mode:
//
//   - Embeds the semantic form of the query and ranks by cosine
//     similarity over a candidate pool of min(limit*10, 100)
//
//   - Literal keyword matches are boosted afterwards so identifier-like
//     terms (stock codes, dates) can overcome semantic misses
//
// Text Mode:
//
//   - FTS5/BM25 over a candidate pool of min(limit*5, 50)
//
//   - The precise lexical form is tried first; if FTS5 rejects it, the
//     query falls back to a plain OR of quoted keywords
//
//   - No embedding required
//
// # Reciprocal Rank Fusion (RRF)
//
// Hybrid mode fuses the two rankings:
//
//	For each result r in vector_results:
//	    rrf_score[r.chunk_id] += 1 / (k + r.rank)
//
//	For each result r in text_results:
//	    rrf_score[r.chunk_id] += 1 / (k + r.rank)
//
//	Sort by rrf_score descending
//
// Ranks start at 1 within each list, a chunk missing from a list
// contributes 0 for it, and k = 60 by default. Fusion works on ranks
// alone; the per-list scores and boosts never leak into hybrid order.
//
// # Caching
//
// Responses can be cached per request (UseCache) in an LRU keyed by a
// hash of query, mode, limit, and RRF constant, with a TTL (default 1h).
// Cached responses are deep-copied on read and write. InvalidateCache
// drops everything and is called after any store write.
package searcher
