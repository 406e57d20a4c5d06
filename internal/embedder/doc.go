// Package embedder generates vector embeddings for document chunks.
//
// Providers register themselves in a registry and are resolved by name at
// startup, so configuration decides the backend without any package-level
// state. Batching, caching, retry, and dimension checking are handled here
// so callers only see the Embedder interface.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "ollama",
//	    Model:     "mxbai-embed-large",
//	    Dimension: 1024,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: chunkText,
//	})
//	fmt.Printf("vector dimension: %d\n", len(result.Vector))
//
// # Providers
//
// Five providers register at init:
//
//   - ollama (default): local server, mxbai-embed-large, 1024 dimensions,
//     no API key
//   - openai: text-embedding-3-small, 1536 dimensions, OPENAI_API_KEY
//   - siliconflow: OpenAI-compatible endpoint, SILICONFLOW_API_KEY
//   - voyage: voyage-3.5, 1024 dimensions, VOYAGE_API_KEY
//   - local: deterministic hash-derived vectors for tests and offline use
//
// Additional providers can join via Register, the same way database/sql
// drivers do:
//
//	embedder.Register("custom", func(cfg embedder.Config) (embedder.Embedder, error) {
//	    return newCustomProvider(cfg)
//	})
//
// # Batch Processing
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// OpenAI-compatible providers send one request per batch. Ollama takes a
// single prompt per call, so its batch path fans out over a bounded worker
// group instead.
//
// # Dimension Checking
//
// Every provider verifies returned vectors against the configured
// dimension. A disagreement surfaces as types.ErrDimensionMismatch and is
// never repaired by truncation or padding; a store populated with
// mixed-width vectors cannot be searched.
//
// # Error Handling
//
// Transient failures retry with exponential backoff (3 attempts, 100ms
// initial, 5s cap). Client errors other than 429 fail immediately.
//
//	_, err := emb.GenerateBatch(ctx, req)
//	switch {
//	case errors.Is(err, types.ErrDimensionMismatch):
//	    // configuration and model disagree; fix config
//	case errors.Is(err, embedder.ErrProviderFailed):
//	    // provider unavailable; retry later
//	}
//
// # Caching
//
// Embeddings cache in-memory by content hash (LRU). Cache reads return deep
// copies, so callers can mutate results freely.
package embedder
