// Package config provides configuration management for Memtor. Settings come
// from three layers, later layers winning: built-in defaults, an optional
// YAML file, and environment variables with the MEMTOR_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a Memtor instance.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Search     SearchConfig     `yaml:"search"`
}

// StorageConfig selects and configures the record store backend.
type StorageConfig struct {
	Engine string `yaml:"engine"` // sqlite, postgres, or memory (default: sqlite)
	Path   string `yaml:"path"`   // SQLite database path (default: ./memtor.db)
	DSN    string `yaml:"dsn"`    // PostgreSQL connection string
}

// EmbeddingConfig configures the external embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // openai or ollama (default: ollama)
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 disables rate limiting
	CacheSize         int     `yaml:"cache_size"`          // embedding cache entries
}

// ExtractionConfig configures context extraction for conversational
// exchanges.
type ExtractionConfig struct {
	Strategy string `yaml:"strategy"` // summary, echo, or none (default: summary)
	Provider string `yaml:"provider"` // completion provider (default: ollama)
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// SearchConfig holds ranking parameters.
type SearchConfig struct {
	TopK   int     `yaml:"top_k"`   // default result cap (default: 10)
	BM25K1 float64 `yaml:"bm25_k1"` // term saturation (default: 1.5)
	BM25B  float64 `yaml:"bm25_b"`  // length normalization (default: 0.75)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine: "sqlite",
			Path:   "./memtor.db",
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		Extraction: ExtractionConfig{
			Strategy: "summary",
			Provider: "ollama",
			Model:    "qwen2.5:7b",
		},
		Search: SearchConfig{
			TopK:   10,
			BM25K1: 1.5,
			BM25B:  0.75,
		},
	}
}

// Load builds the effective configuration. When path is empty,
// ~/.memtor/config.yaml is used if it exists; a missing file is not an
// error, but an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".memtor", "config.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults + env only
		case err != nil:
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		default:
			// Unmarshal over the defaults: keys absent from the file keep
			// their default values, present keys override them.
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays MEMTOR_-prefixed environment variables on the config.
func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("MEMTOR_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.Path = getEnv("MEMTOR_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.DSN = getEnv("MEMTOR_STORAGE_DSN", cfg.Storage.DSN)

	cfg.Embedding.Provider = getEnv("MEMTOR_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.Model = getEnv("MEMTOR_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.BaseURL = getEnv("MEMTOR_EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("MEMTOR_EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.RequestsPerSecond = getEnvFloat("MEMTOR_EMBEDDING_RPS", cfg.Embedding.RequestsPerSecond)
	cfg.Embedding.CacheSize = getEnvInt("MEMTOR_EMBEDDING_CACHE_SIZE", cfg.Embedding.CacheSize)

	cfg.Extraction.Strategy = getEnv("MEMTOR_EXTRACTION_STRATEGY", cfg.Extraction.Strategy)
	cfg.Extraction.Provider = getEnv("MEMTOR_EXTRACTION_PROVIDER", cfg.Extraction.Provider)
	cfg.Extraction.Model = getEnv("MEMTOR_EXTRACTION_MODEL", cfg.Extraction.Model)
	cfg.Extraction.BaseURL = getEnv("MEMTOR_EXTRACTION_BASE_URL", cfg.Extraction.BaseURL)
	cfg.Extraction.APIKey = getEnv("MEMTOR_EXTRACTION_API_KEY", cfg.Extraction.APIKey)

	cfg.Search.TopK = getEnvInt("MEMTOR_SEARCH_TOP_K", cfg.Search.TopK)
	cfg.Search.BM25K1 = getEnvFloat("MEMTOR_SEARCH_BM25_K1", cfg.Search.BM25K1)
	cfg.Search.BM25B = getEnvFloat("MEMTOR_SEARCH_BM25_B", cfg.Search.BM25B)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
