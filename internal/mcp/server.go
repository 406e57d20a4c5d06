package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/gorag/internal/chunker"
	"github.com/dshills/gorag/internal/config"
	"github.com/dshills/gorag/internal/embedder"
	"github.com/dshills/gorag/internal/query"
	"github.com/dshills/gorag/internal/searcher"
	"github.com/dshills/gorag/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "gorag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	store    *storage.Store
	chunker  *chunker.Chunker
	searcher *searcher.Searcher
	embedder embedder.Embedder
	logger   *slog.Logger

	// Search defaults carried from the config; tool calls cannot
	// override caching behavior.
	dbPath   string
	useCache bool
	cacheTTL time.Duration
	rrfK     float64

	ingest ingestLock
}

// NewServer creates a new MCP server instance. The embedder, chunker,
// store, and searcher are all built from cfg; the single embedder
// instance is shared by the store and searcher so both hit one cache.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Store.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	emb, err := embedder.New(cfg.ToEmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chk, err := chunker.New(chunker.Config{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
		Encoding:     cfg.Chunker.Encoding,
	})
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Store.Path, emb, logger)
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	proc := query.New(query.DefaultTables())
	srch := searcher.NewSearcher(store, emb, proc, logger)

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		store:    store,
		chunker:  chk,
		searcher: srch,
		embedder: emb,
		logger:   logger.With("component", "mcp"),
		dbPath:   cfg.Store.Path,
		useCache: cfg.Search.UseCache,
		cacheTTL: ttl,
		rrfK:     cfg.Search.RRFConstant,
	}

	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	s.logger.Info("mcp server listening on stdio",
		"build_mode", storage.BuildMode,
		"provider", s.embedder.Provider())
	return server.ServeStdio(s.mcp)
}

// Close releases the store and the embedding provider.
func (s *Server) Close() error {
	err := s.store.Close()
	if cerr := s.embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(addDocumentTool(), s.handleAddDocument)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(getDocumentTool(), s.handleGetDocument)
	s.mcp.AddTool(removeDocumentTool(), s.handleRemoveDocument)
	s.mcp.AddTool(statusTool(), s.handleStatus)
}
