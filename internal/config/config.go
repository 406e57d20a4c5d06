package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/gorag/internal/embedder"
)

// Config represents the application configuration
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Chunker  ChunkerConfig  `toml:"chunker"`
	Embedder EmbedderConfig `toml:"embedder"`
	Search   SearchConfig   `toml:"search"`
	Log      LogConfig      `toml:"log"`
}

// StoreConfig locates the SQLite database
type StoreConfig struct {
	Path string `toml:"path"`
}

// ChunkerConfig controls how documents are split
type ChunkerConfig struct {
	ChunkSize    int    `toml:"chunk_size"`    // Max tokens per chunk
	ChunkOverlap int    `toml:"chunk_overlap"` // Tokens shared between neighbors
	Encoding     string `toml:"encoding"`      // tiktoken encoding name
}

// EmbedderConfig selects and tunes the embedding provider
type EmbedderConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	BatchSize int    `toml:"batch_size"`
	CacheSize int    `toml:"cache_size"`
}

// SearchConfig tunes result fusion and caching
type SearchConfig struct {
	RRFConstant float64 `toml:"rrf_constant"`
	UseCache    bool    `toml:"use_cache"`
	CacheTTL    string  `toml:"cache_ttl"` // e.g. "1h"
}

// LogConfig controls structured logging
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "gorag.db",
		},
		Chunker: ChunkerConfig{
			ChunkSize:    1024,
			ChunkOverlap: 256,
			Encoding:     "cl100k_base",
		},
		Embedder: EmbedderConfig{
			Provider:  "ollama",
			Model:     "mxbai-embed-large",
			Dimension: 1024,
			BatchSize: 32,
			CacheSize: 1000,
		},
		Search: SearchConfig{
			RRFConstant: 60,
			UseCache:    true,
			CacheTTL:    "1h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path if
// one exists, then environment overrides. An empty path skips the file
// stage; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if path := os.Getenv("GORAG_DB_PATH"); path != "" {
		cfg.Store.Path = path
	}

	if provider := os.Getenv("GORAG_EMBEDDINGS_PROVIDER"); provider != "" {
		cfg.Embedder.Provider = provider
	}
	if model := os.Getenv("GORAG_EMBEDDINGS_MODEL"); model != "" {
		cfg.Embedder.Model = model
	}
	if dim := os.Getenv("GORAG_EMBEDDINGS_DIM"); dim != "" {
		if n, err := strconv.Atoi(dim); err == nil {
			cfg.Embedder.Dimension = n
		}
	}
	if baseURL := os.Getenv(embedder.EnvOllamaBaseURL); baseURL != "" && cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = baseURL
	}

	if level := os.Getenv("GORAG_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// Validate checks ranges and provider availability.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}

	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap cannot be negative, got %d", c.Chunker.ChunkOverlap)
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
	}
	if c.Chunker.Encoding == "" {
		return fmt.Errorf("chunker encoding cannot be empty")
	}

	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Embedder.Provider != "" {
		registered := false
		for _, name := range embedder.Providers() {
			if name == c.Embedder.Provider {
				registered = true
				break
			}
		}
		if !registered {
			return fmt.Errorf("unknown embedding provider %q (registered: %v)",
				c.Embedder.Provider, embedder.Providers())
		}
	}

	if c.Search.RRFConstant < 0 {
		return fmt.Errorf("rrf_constant cannot be negative, got %g", c.Search.RRFConstant)
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// CacheTTL parses the configured cache TTL.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Search.CacheTTL == "" {
		return time.Hour, nil
	}
	ttl, err := time.ParseDuration(c.Search.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid cache_ttl %q: %w", c.Search.CacheTTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("cache_ttl must be positive, got %s", ttl)
	}
	return ttl, nil
}

// ToEmbedderConfig translates the embedder section into the registry's
// config type. Provider API keys stay in the environment unless set in
// the file explicitly.
func (c *Config) ToEmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedder.Provider,
		Model:     c.Embedder.Model,
		BaseURL:   c.Embedder.BaseURL,
		APIKey:    c.Embedder.APIKey,
		Dimension: c.Embedder.Dimension,
		BatchSize: c.Embedder.BatchSize,
		CacheSize: c.Embedder.CacheSize,
	}
}
