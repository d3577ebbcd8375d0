package extract

import (
	"fmt"

	"github.com/scrypster/memtor/internal/llm"
)

// NewExtractor maps a configured strategy name to a concrete extractor.
// "none" disables extraction and returns (nil, nil); callers treat a nil
// extractor as "store exchanges without context".
func NewExtractor(strategy string, generator llm.TextGenerator) (Extractor, error) {
	switch strategy {
	case "echo":
		return NewEchoExtractor(), nil
	case "summary", "":
		if generator == nil {
			return nil, fmt.Errorf("extract: summary strategy requires a text generator")
		}
		return NewSummaryExtractor(generator), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("extract: unknown extraction strategy: %q", strategy)
	}
}
