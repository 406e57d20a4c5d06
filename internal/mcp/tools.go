package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gorag/internal/searcher"
	"github.com/dshills/gorag/internal/storage"
	"github.com/dshills/gorag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound         = -32001 // Referenced document or chunk does not exist
	ErrorCodeIngestInProgress = -32002 // Another add_document call is already running
	ErrorCodeEmbeddingFailed  = -32003 // Embedding provider failure
	ErrorCodeStoreUnavailable = -32004 // Store closed or unreachable
)

// handleAddDocument handles the add_document tool invocation
func (s *Server) handleAddDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "content parameter is required", map[string]interface{}{
			"param":  "content",
			"reason": "missing or empty",
		})
	}

	uri := getStringDefault(args, "uri", "")
	metadata, _ := args["metadata"].(map[string]interface{})

	// One ingest at a time. Rejecting instead of queueing keeps the
	// protocol stream responsive while a slow provider embeds.
	if !s.ingest.TryAcquire() {
		return nil, newMCPError(ErrorCodeIngestInProgress, "another add_document call is already running", nil)
	}
	defer s.ingest.Release()

	start := time.Now()

	texts, err := s.chunker.Chunk(ctx, content)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "chunking failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if len(texts) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "content produced no chunks", map[string]interface{}{
			"param": "content",
		})
	}

	doc, err := s.store.CreateDocument(ctx, uri, metadata)
	if err != nil {
		return nil, domainError(err, "failed to create document")
	}

	chunks, err := s.store.CreateChunksForDocument(ctx, doc.ID, texts, nil)
	if err != nil {
		// The chunk unit aborted whole, so only the empty document row
		// is left to clean up.
		if delErr := s.store.DeleteDocument(ctx, doc.ID); delErr != nil {
			s.logger.Warn("orphan document cleanup failed", "document_id", doc.ID, "error", delErr)
		}
		return nil, domainError(err, "failed to store chunks")
	}

	s.searcher.InvalidateCache()

	s.logger.Info("document added", "document_id", doc.ID, "chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds())

	response := map[string]interface{}{
		"document_id":    doc.ID,
		"chunks_created": len(chunks),
		"duration_ms":    time.Since(start).Milliseconds(),
	}
	if doc.URI != "" {
		response["uri"] = doc.URI
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	queryText, ok := args["query"].(string)
	if !ok || strings.TrimSpace(queryText) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeText:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   string(mode),
			"allowed": []string{"hybrid", "vector", "text"},
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:       queryText,
		Limit:       limit,
		Mode:        mode,
		UseCache:    s.useCache,
		CacheTTL:    s.cacheTTL,
		RRFConstant: s.rrfK,
	})
	if err != nil {
		return nil, domainError(err, "search failed")
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":     r.Rank,
			"score":    r.Score,
			"source":   string(r.Source),
			"chunk_id": r.ChunkID,
		}
		if r.Chunk != nil {
			entry["document_id"] = r.Chunk.DocumentID
			entry["content"] = r.Chunk.Content
			if r.Chunk.DocumentURI != "" {
				entry["document_uri"] = r.Chunk.DocumentURI
			}
			if len(r.Chunk.Metadata) > 0 {
				entry["metadata"] = r.Chunk.Metadata
			}
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"query":         queryText,
		"mode":          string(resp.SearchMode),
		"total_results": resp.TotalResults,
		"duration_ms":   resp.Duration.Milliseconds(),
		"cache_hit":     resp.CacheHit,
		"results":       results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDocument handles the get_document tool invocation
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	docID, ok := getInt64(args, "document_id")
	if !ok || docID < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or not a positive integer",
		})
	}

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, domainError(err, "failed to get document")
	}

	chunks, err := s.store.GetChunksByDocument(ctx, docID)
	if err != nil {
		return nil, domainError(err, "failed to list chunks")
	}

	chunkEntries := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		entry := map[string]interface{}{
			"chunk_id": c.ID,
			"content":  c.Content,
		}
		if order := c.Order(); order >= 0 {
			entry["order"] = order
		}
		if len(c.Metadata) > 0 {
			entry["metadata"] = c.Metadata
		}
		chunkEntries = append(chunkEntries, entry)
	}

	response := map[string]interface{}{
		"document": map[string]interface{}{
			"id":         doc.ID,
			"uri":        doc.URI,
			"metadata":   doc.Metadata,
			"created_at": doc.CreatedAt.Format(time.RFC3339),
			"updated_at": doc.UpdatedAt.Format(time.RFC3339),
		},
		"chunk_count": len(chunks),
		"chunks":      chunkEntries,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRemoveDocument handles the remove_document tool invocation
func (s *Server) handleRemoveDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	docID, ok := getInt64(args, "document_id")
	if !ok || docID < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or not a positive integer",
		})
	}

	// Counted before the delete; the cascade removes the rows.
	chunks, err := s.store.GetChunksByDocument(ctx, docID)
	if err != nil {
		return nil, domainError(err, "failed to list chunks")
	}

	if err := s.store.DeleteDocument(ctx, docID); err != nil {
		return nil, domainError(err, "failed to remove document")
	}

	s.searcher.InvalidateCache()

	s.logger.Info("document removed", "document_id", docID, "chunks", len(chunks))

	response := map[string]interface{}{
		"removed":        true,
		"document_id":    docID,
		"chunks_removed": len(chunks),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleStatus handles the status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, domainError(err, "failed to read store statistics")
	}

	response := map[string]interface{}{
		"server": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
		"store": map[string]interface{}{
			"path":             s.dbPath,
			"driver":           storage.DriverName,
			"build_mode":       storage.BuildMode,
			"vector_extension": storage.VectorExtensionAvailable,
			"documents":        stats.Documents,
			"chunks":           stats.Chunks,
			"embeddings":       stats.Embeddings,
			"size_mb":          fmt.Sprintf("%.2f", stats.SizeMB),
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// domainError maps a core-package failure onto the matching MCP error code.
// Anything outside the shared taxonomy reports as an internal error.
func domainError(err error, message string) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, types.ErrEmbeddingFailed), errors.Is(err, types.ErrDimensionMismatch):
		code = ErrorCodeEmbeddingFailed
	case errors.Is(err, types.ErrStoreUnavailable):
		code = ErrorCodeStoreUnavailable
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getInt64 extracts a required integer parameter. JSON numbers arrive as
// float64 through the protocol decoder.
func getInt64(args map[string]interface{}, key string) (int64, bool) {
	switch val := args[key].(type) {
	case float64:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	}
	return 0, false
}
