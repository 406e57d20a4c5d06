package embedder

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config holds embedder configuration. Zero fields fall back to the
// provider's defaults; API keys additionally fall back to the provider's
// environment variable.
type Config struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	BatchSize int
	CacheSize int
}

// Factory builds a configured Embedder. Providers register one under their
// name at init time; New resolves the configured name against the registry.
type Factory func(cfg Config) (Embedder, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider available to New under the given name.
// Registering a duplicate name panics, as with database/sql drivers.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name = strings.ToLower(name)
	if f == nil {
		panic("embedder: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("embedder: Register called twice for provider " + name)
	}
	registry[name] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New resolves cfg.Provider against the registry and builds the embedder.
// An empty provider selects ollama.
func New(cfg Config) (Embedder, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = ProviderOllama
	}

	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Providers(), ", "))
	}
	return factory(cfg)
}

// cacheFromConfig builds the shared embedding cache, or nil when caching is
// disabled.
func cacheFromConfig(cfg Config) *Cache {
	if cfg.CacheSize <= 0 {
		return nil
	}
	return NewCache(cfg.CacheSize)
}
