// Package storage provides SQLite-based persistence for documents, their
// chunks, and the derived search artifacts.
//
// The store keeps three artifacts per chunk in lockstep:
//   - the chunk row itself
//   - its embedding vector (chunk_embeddings)
//   - its full-text index entry (chunks_fts, maintained by triggers)
//
// Every write operation is a single transaction. After a successful write
// all three artifacts agree; after a failed write none of them changed.
//
// # Database Schema
//
// Tables:
//   - documents: source documents (URI, metadata)
//   - chunks: text fragments belonging to a document; position within
//     the document travels in metadata under the "order" key
//   - chunk_embeddings: one vector per chunk, little-endian float32 blob
//   - chunks_fts: FTS5 external-content index over chunk content
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, "gorag.db", emb, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	doc, err := store.CreateDocument(ctx, "report.md", nil)
//	chunks, err := store.CreateChunksForDocument(ctx, doc.ID, texts, nil)
//
// # Search Primitives
//
// SearchVector ranks chunks by cosine distance to a query vector;
// SearchText runs an FTS5 MATCH with BM25 ranking. Both return chunk IDs
// with normalized scores in (0, 1]; the searcher package fuses them.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Includes sqlite-vec extension so distance is computed in SQL
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - Cosine similarity computed in Go over a full scan
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
