package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/gorag/internal/chunker"
	"github.com/dshills/gorag/internal/storage"
)

// setupIngestBenchmark builds an empty in-memory store and the chunker
// used by the ingest benchmarks.
func setupIngestBenchmark(b *testing.B) (*storage.Store, *chunker.Chunker, string) {
	wd, err := os.Getwd()
	if err != nil {
		b.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(wd), "testdata", "fixtures", "segment_results_en.md"))
	if err != nil {
		b.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(context.Background(), ":memory:", NewMockEmbedder(mockDimension), logger)
	if err != nil {
		b.Fatal(err)
	}

	ck, err := chunker.New(chunker.Config{
		ChunkSize:    256,
		ChunkOverlap: 32,
		Encoding:     chunker.DefaultEncoding,
	})
	if err != nil {
		store.Close()
		b.Fatal(err)
	}

	return store, ck, string(raw)
}

// BenchmarkIngestDocument measures the full pipeline for one document:
// chunking, embedding, and writing both indexes.
func BenchmarkIngestDocument(b *testing.B) {
	store, ck, text := setupIngestBenchmark(b)
	defer store.Close()
	ctx := context.Background()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		doc, err := store.CreateDocument(ctx, fmt.Sprintf("bench-%d.md", i), nil)
		if err != nil {
			b.Fatal(err)
		}
		texts, err := ck.Chunk(ctx, text)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := store.CreateChunksForDocument(ctx, doc.ID, texts, nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkChunkDocument isolates the tokenization and splitting cost.
func BenchmarkChunkDocument(b *testing.B) {
	store, ck, text := setupIngestBenchmark(b)
	defer store.Close()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ck.Chunk(ctx, text); err != nil {
			b.Fatal(err)
		}
	}
}
