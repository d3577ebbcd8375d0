// Package llm provides clients for external embedding and completion
// providers. Every client wraps its HTTP calls with circuit breaker
// protection and optional rate limiting; embedding generators can
// additionally be wrapped with an LRU cache.
package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures a provider. It is the single shape
// the configuration layer hands to this package.
type ProviderConfig struct {
	Provider          string // "openai" or "ollama" (default)
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	CacheSize         int // embedding cache entries; 0 uses the default
}

// NewEmbeddingGenerator creates the configured embedding client, wrapped in
// the LRU cache.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	var inner EmbeddingGenerator
	switch cfg.Provider {
	case "openai":
		inner = NewOpenAIEmbeddingClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case "ollama", "":
		inner = NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
	return NewCachedEmbeddingGenerator(inner, cfg.CacheSize)
}

// NewTextGenerator creates the configured completion client.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case "ollama", "":
		model := cfg.Model
		if model == "" {
			model = "qwen2.5:7b"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
