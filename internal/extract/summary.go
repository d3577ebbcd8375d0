package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/memtor/internal/llm"
)

const summaryPrompt = `You are a knowledge extraction system. Analyze the conversation below and respond with ONLY a JSON object in this exact format:

{
    "summary": string (concise description of the interaction),
    "keywords": [string] (key terms and concepts from the conversation),
    "interaction_type": "task" | "discussion" | "query"
}

User message: %s
Assistant response: %s`

// summaryContext is the shape the model is asked to produce.
type summaryContext struct {
	Summary         string   `json:"summary"`
	Keywords        []string `json:"keywords"`
	InteractionType string   `json:"interaction_type"`
}

// SummaryExtractor asks a completion model for a summary, keywords, and an
// interaction type for the exchange.
type SummaryExtractor struct {
	generator llm.TextGenerator
}

var _ Extractor = (*SummaryExtractor)(nil)

// NewSummaryExtractor creates an LLM-backed extractor.
func NewSummaryExtractor(generator llm.TextGenerator) *SummaryExtractor {
	return &SummaryExtractor{generator: generator}
}

// Extract runs the extraction prompt and parses the response. Model output
// often wraps the JSON in prose or markdown fences, so the object is carved
// out before unmarshaling.
func (e *SummaryExtractor) Extract(ctx context.Context, userMessage, assistantResponse string) (map[string]any, error) {
	prompt := fmt.Sprintf(summaryPrompt, userMessage, assistantResponse)
	raw, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: completion failed: %w", err)
	}

	var parsed summaryContext
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("extract: failed to parse extraction response: %w", err)
	}
	if parsed.Summary == "" {
		return nil, fmt.Errorf("extract: extraction response has no summary")
	}

	keywords := make([]any, len(parsed.Keywords))
	for i, k := range parsed.Keywords {
		keywords[i] = k
	}
	return map[string]any{
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"summary":          parsed.Summary,
		"keywords":         keywords,
		"interaction_type": parsed.InteractionType,
	}, nil
}

// extractJSON carves the first complete JSON object out of the text,
// tolerating markdown code fences and surrounding prose. When no object is
// found the text is returned as-is and the parser reports the failure.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		char := text[i]
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return text[start:]
}
