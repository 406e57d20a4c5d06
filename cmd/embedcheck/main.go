package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/dshills/gorag/internal/config"
	"github.com/dshills/gorag/internal/embedder"
	"github.com/dshills/gorag/internal/storage"
)

const defaultSample = "The annual general meeting will be held on June 3 at the registered office."

func main() {
	configPath := flag.String("config", "", "path to TOML config file (or GORAG_CONFIG)")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(0)

	path := *configPath
	if path == "" {
		path = os.Getenv("GORAG_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sample := defaultSample
	if flag.NArg() > 0 {
		sample = flag.Arg(0)
	}

	fmt.Printf("Checking embedding provider %q...\n", cfg.Embedder.Provider)

	emb, err := embedder.New(cfg.ToEmbedderConfig())
	if err != nil {
		log.Fatalf("failed to initialize embedder: %v", err)
	}
	defer emb.Close()

	ctx := context.Background()

	// Single embedding
	start := time.Now()
	single, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: sample})
	if err != nil {
		log.Fatalf("embedding failed: %v", err)
	}
	singleLatency := time.Since(start)

	fmt.Printf("\nSingle embedding:\n")
	fmt.Printf("  Provider: %s\n", single.Provider)
	fmt.Printf("  Model: %s\n", single.Model)
	fmt.Printf("  Dimension: %d\n", single.Dimension)
	fmt.Printf("  Vector Norm: %.4f\n", vectorNorm(single.Vector))
	fmt.Printf("  Latency: %v\n", singleLatency)

	if len(single.Vector) != emb.Dimension() {
		log.Fatalf("dimension mismatch: vector has %d values, provider reports %d",
			len(single.Vector), emb.Dimension())
	}

	// Batch embedding
	texts := []string{
		"Dividend of 0.42 per share payable in March.",
		"Quarterly revenue grew by twelve percent.",
		sample,
	}
	start = time.Now()
	batch, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		log.Fatalf("batch embedding failed: %v", err)
	}
	batchLatency := time.Since(start)

	fmt.Printf("\nBatch embedding:\n")
	fmt.Printf("  Texts: %d\n", len(texts))
	fmt.Printf("  Vectors: %d\n", len(batch.Embeddings))
	fmt.Printf("  Latency: %v\n", batchLatency)

	if len(batch.Embeddings) != len(texts) {
		log.Fatalf("batch returned %d vectors for %d texts", len(batch.Embeddings), len(texts))
	}

	// Store round-trip: write a chunk through an in-memory store and find
	// it again by vector search. Exercises the SQLite driver and the FTS
	// index alongside the provider.
	store, err := storage.Open(ctx, ":memory:", emb, nil)
	if err != nil {
		log.Fatalf("failed to open in-memory store: %v", err)
	}
	defer store.Close()

	doc, err := store.CreateDocument(ctx, "embedcheck", nil)
	if err != nil {
		log.Fatalf("failed to create document: %v", err)
	}
	chunk, err := store.CreateChunk(ctx, doc.ID, sample, nil)
	if err != nil {
		log.Fatalf("failed to create chunk: %v", err)
	}

	results, err := store.SearchVector(ctx, single.Vector, 1)
	if err != nil {
		log.Fatalf("vector search failed: %v", err)
	}

	fmt.Printf("\nStore round-trip:\n")
	fmt.Printf("  Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("  Chunk ID: %d\n", chunk.ID)
	fmt.Printf("  Results: %d\n", len(results))

	if len(results) != 1 || results[0].ChunkID != chunk.ID {
		fmt.Println("\n✗ FAILURE: stored chunk not found by vector search")
		os.Exit(1)
	}
	fmt.Printf("  Similarity: %.4f\n", results[0].Similarity)

	fmt.Println("\n✓ SUCCESS: provider and store are working")
}

// vectorNorm returns the Euclidean length of the vector.
func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
