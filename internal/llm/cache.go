package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbeddingGenerator wraps an EmbeddingGenerator with a fixed-size LRU
// cache keyed by content hash. Identical text embeds once per cache lifetime,
// which matters because every save, update, and text search costs one
// provider round trip otherwise.
type CachedEmbeddingGenerator struct {
	inner EmbeddingGenerator
	cache *lru.Cache[string, []float64]
}

var _ EmbeddingGenerator = (*CachedEmbeddingGenerator)(nil)

// DefaultEmbeddingCacheSize is the cache entry cap used when the caller does
// not configure one.
const DefaultEmbeddingCacheSize = 1024

// NewCachedEmbeddingGenerator wraps inner with an LRU cache of the given
// size. A size of 0 or less falls back to DefaultEmbeddingCacheSize.
func NewCachedEmbeddingGenerator(inner EmbeddingGenerator, size int) (*CachedEmbeddingGenerator, error) {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbeddingGenerator{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text when present, otherwise delegates
// to the wrapped generator and caches the result. Cached vectors are returned
// as copies so a caller mutating its slice cannot poison the cache.
func (c *CachedEmbeddingGenerator) Embed(ctx context.Context, text string) ([]float64, error) {
	key := cacheKey(c.inner.GetModel(), text)
	if vec, ok := c.cache.Get(key); ok {
		return append([]float64(nil), vec...), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]float64(nil), vec...))
	return vec, nil
}

// GetModel returns the wrapped generator's model name.
func (c *CachedEmbeddingGenerator) GetModel() string {
	return c.inner.GetModel()
}

// Len reports the number of cached embeddings.
func (c *CachedEmbeddingGenerator) Len() int {
	return c.cache.Len()
}

// cacheKey hashes (model, text) so two models never share an entry and
// arbitrarily long content keys stay fixed-size.
func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
