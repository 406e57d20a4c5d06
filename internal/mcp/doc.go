// Package mcp implements the Model Context Protocol (MCP) server for gorag.
//
// The MCP server exposes five tools to AI coding assistants:
//   - add_document: Chunk, embed, and index a document
//   - search: Query stored chunks with hybrid retrieval
//   - get_document: Fetch a document and its chunks
//   - remove_document: Delete a document and everything derived from it
//   - status: Report store statistics and provider details
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The MCP server is the default mode of the gorag binary:
//
//	gorag
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout. All logging goes to stderr.
//
// # Tool: add_document
//
// Chunk and index a document:
//
//	Request:
//	{
//	  "name": "add_document",
//	  "arguments": {
//	    "content": "Full text of the document...",
//	    "uri": "reports/2026-q2.txt",
//	    "metadata": {"source": "filings"}
//	  }
//	}
//
//	Response:
//	{
//	  "document_id": 7,
//	  "uri": "reports/2026-q2.txt",
//	  "chunks_created": 12,
//	  "duration_ms": 843
//	}
//
// Only one add_document call runs at a time; a concurrent call fails with
// code -32002 instead of queueing behind a slow embedding provider.
//
// # Tool: search
//
// Query stored chunks:
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "query": "annual general meeting schedule",
//	    "limit": 10,
//	    "mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "query": "annual general meeting schedule",
//	  "mode": "hybrid",
//	  "total_results": 3,
//	  "duration_ms": 42,
//	  "cache_hit": false,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.0325,
//	      "source": "hybrid",
//	      "chunk_id": 19,
//	      "document_id": 7,
//	      "document_uri": "reports/2026-q2.txt",
//	      "content": "The annual general meeting will be held..."
//	    }
//	  ]
//	}
//
// Modes: hybrid (vector + text fused with Reciprocal Rank Fusion, the
// default), vector (semantic only), text (BM25 only).
//
// # Tool: get_document / remove_document
//
// Both take a document_id. get_document returns the document row plus its
// chunks in order; remove_document cascades the delete through chunks,
// embeddings, and the full-text index:
//
//	Request:
//	{
//	  "name": "remove_document",
//	  "arguments": {"document_id": 7}
//	}
//
//	Response:
//	{
//	  "removed": true,
//	  "document_id": 7,
//	  "chunks_removed": 12
//	}
//
// # Tool: status
//
// Takes no arguments:
//
//	Response:
//	{
//	  "server": {"name": "gorag", "version": "1.0.0"},
//	  "store": {
//	    "path": "gorag.db",
//	    "driver": "sqlite",
//	    "build_mode": "purego",
//	    "vector_extension": false,
//	    "documents": 4,
//	    "chunks": 87,
//	    "embeddings": 87,
//	    "size_mb": "1.24"
//	  },
//	  "embedder": {
//	    "provider": "ollama",
//	    "model": "mxbai-embed-large",
//	    "dimension": 1024
//	  }
//	}
//
// # MCP Client Configuration
//
// Configure in an MCP client's settings:
//
//	{
//	  "mcpServers": {
//	    "gorag": {
//	      "command": "/usr/local/bin/gorag",
//	      "args": ["--config", "/etc/gorag/gorag.toml"],
//	      "env": {
//	        "OLLAMA_BASE_URL": "http://localhost:11434"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// The MCP server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32001,
//	    "message": "failed to get document",
//	    "data": {"error": "document 42: not found"}
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (chunking, database, filesystem)
//   - -32001: Document or chunk not found
//   - -32002: Another add_document call is already running
//   - -32003: Embedding provider failed or returned a wrong dimension
//   - -32004: Store closed or unreachable
//
// # Logging
//
// The MCP server logs to stderr (stdout is reserved for MCP protocol).
// The log level comes from the config file or GORAG_LOG_LEVEL.
package mcp
