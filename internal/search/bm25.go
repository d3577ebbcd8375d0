package search

import (
	"fmt"
	"sort"
	"strings"
)

// Default BM25 parameters: k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// bm25Rerank re-scores a cosine shortlist lexically and returns it reordered
// by descending (BM25 score + keyword boost). Term and document frequencies
// are computed over exactly this shortlist, not the whole store. Stage-1
// relative order survives score ties via the stable sort.
//
// An empty shortlist vocabulary (all content tokenized away) is reported as
// an error so the caller can fall back to the cosine order.
func bm25Rerank(queryText string, keywords []string, shortlist []scoredRecord, k1, b float64) ([]scoredRecord, error) {
	queryTerms := Tokenize(queryText)
	if len(queryTerms) == 0 {
		return nil, fmt.Errorf("search: query %q tokenized to nothing", queryText)
	}

	// Per-document term frequencies and lengths over the shortlist corpus.
	docTerms := make([]map[string]float64, len(shortlist))
	docLens := make([]float64, len(shortlist))
	vocabulary := make(map[string]bool)
	var totalLen float64
	for i, cand := range shortlist {
		tf := make(map[string]float64)
		for _, term := range Tokenize(cand.record.Content) {
			tf[term]++
			vocabulary[term] = true
		}
		docTerms[i] = tf
		for _, n := range tf {
			docLens[i] += n
		}
		totalLen += docLens[i]
	}
	if len(vocabulary) == 0 {
		return nil, fmt.Errorf("search: shortlist vocabulary is empty")
	}
	avgLen := totalLen / float64(len(shortlist))

	// Query-side term weights: how often each term occurs in the query.
	queryWeight := make(map[string]float64)
	for _, term := range queryTerms {
		queryWeight[term]++
	}

	reranked := make([]scoredRecord, len(shortlist))
	for i, cand := range shortlist {
		var score float64
		for term, qw := range queryWeight {
			if !vocabulary[term] {
				continue
			}
			f := docTerms[i][term]
			score += qw * (f * (k1 + 1)) / (f + k1*(1-b+b*docLens[i]/avgLen))
		}

		// Keyword boost: each caller-supplied keyword present in the
		// shortlist vocabulary adds its raw term frequency to the score,
		// nudging candidates that mention it regardless of the query text.
		for _, keyword := range keywords {
			term := strings.ToLower(strings.TrimSpace(keyword))
			if vocabulary[term] {
				score += docTerms[i][term]
			}
		}

		reranked[i] = scoredRecord{record: cand.record, score: score, index: cand.index}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].score > reranked[j].score
	})
	return reranked, nil
}
