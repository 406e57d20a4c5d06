package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// addDocumentTool returns the tool definition for add_document
func addDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_document",
		Description: "Add a document to the store: split into chunks, embed, and index for search",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Full document text to chunk and index",
				},
				"uri": map[string]interface{}{
					"type":        "string",
					"description": "Origin identifier for the document (path, URL, or logical name)",
				},
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Arbitrary key/value metadata stored with the document",
				},
			},
			Required: []string{"content"},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search stored chunks with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + text fused with RRF), vector (semantic only), or text (BM25 only)",
					"enum":        []string{"hybrid", "vector", "text"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

// getDocumentTool returns the tool definition for get_document
func getDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_document",
		Description: "Fetch a document and its chunks by document id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "integer",
					"description": "Document id returned by add_document",
					"minimum":     1,
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// removeDocumentTool returns the tool definition for remove_document
func removeDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_document",
		Description: "Remove a document and all of its chunks, embeddings, and index entries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "integer",
					"description": "Document id returned by add_document",
					"minimum":     1,
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// statusTool returns the tool definition for status
func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "status",
		Description: "Report store statistics, build mode, and embedding provider details",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
