// Package extract turns conversational exchanges into structured context
// attached to stored records. Extraction is best-effort: a failed extraction
// degrades to no context rather than blocking memory creation.
package extract

import (
	"context"
	"time"
)

// Extractor derives a structured context payload from one user/assistant
// exchange. The returned map is stored opaquely on the record; neither
// storage nor ranking interprets it.
type Extractor interface {
	Extract(ctx context.Context, userMessage, assistantResponse string) (map[string]any, error)
}

// EchoExtractor is the zero-dependency strategy: it records only when the
// exchange happened.
type EchoExtractor struct{}

var _ Extractor = (*EchoExtractor)(nil)

// NewEchoExtractor returns the timestamp-only extraction strategy.
func NewEchoExtractor() *EchoExtractor {
	return &EchoExtractor{}
}

// Extract returns a context holding only the extraction timestamp.
func (e *EchoExtractor) Extract(_ context.Context, _, _ string) (map[string]any, error) {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
