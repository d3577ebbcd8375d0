package llm

import "context"

// EmbeddingGenerator produces vector embeddings for text. Implementations
// must return vectors of a fixed dimension per configuration; the store and
// ranker treat dimension changes as fatal input errors.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	GetModel() string
}

// TextGenerator is the interface for LLM text completion. Context extraction
// uses single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
