// Package config loads application configuration from an optional TOML
// file with environment overrides on top of built-in defaults.
//
// Precedence, lowest to highest: Default(), the TOML file passed to
// Load, environment variables (GORAG_DB_PATH, GORAG_EMBEDDINGS_PROVIDER,
// GORAG_EMBEDDINGS_MODEL, GORAG_EMBEDDINGS_DIM, GORAG_LOG_LEVEL,
// OLLAMA_BASE_URL). Provider API keys (OPENAI_API_KEY,
// SILICONFLOW_API_KEY, VOYAGE_API_KEY) are read by the embedding
// providers themselves so they never have to live in a file on disk.
//
// Components receive explicit values through their constructors; there is
// no package-level mutable configuration.
package config
