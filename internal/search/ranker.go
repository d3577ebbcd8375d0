// Package search implements the two-stage relevance ranker: cosine
// similarity selects a candidate shortlist, then a BM25-style lexical pass
// reorders it for text queries. The ranker never computes embeddings; the
// query vector must arrive precomputed.
package search

import (
	"log"

	"github.com/scrypster/memtor/pkg/types"
)

// Query carries everything the ranker needs for one search. Vector is
// required; Text and Keywords drive the lexical stage and may be empty, in
// which case the cosine order is final.
type Query struct {
	Text     string
	Vector   []float64
	Keywords []string
}

// Ranker orders a candidate set by relevance to a query.
type Ranker interface {
	Rank(query Query, candidates []*types.Record, topK int) ([]*types.Record, error)
}

// TwoStageRanker is the default Ranker. Stage 1 scores candidates by cosine
// similarity against the query vector and keeps the top-K; stage 2 reorders
// that shortlist by BM25 with keyword boosting when the query has text.
type TwoStageRanker struct {
	// K1 and B are the BM25 saturation and length-normalization parameters.
	K1 float64
	B  float64
}

var _ Ranker = (*TwoStageRanker)(nil)

// NewTwoStageRanker returns a ranker with the default BM25 parameters.
func NewTwoStageRanker() *TwoStageRanker {
	return &TwoStageRanker{K1: DefaultK1, B: DefaultB}
}

// Rank runs both stages and returns at most topK records, best first.
// Repeated calls with identical inputs return the identical order: both
// stages sort stably, with the candidate's input position as the only
// tie-break.
//
// A lexical-stage failure is logged and absorbed: the cosine order is a
// correct (if less refined) answer, so stage 2 degrades quality, never
// availability. Dimension mismatches in stage 1 are fatal.
func (r *TwoStageRanker) Rank(query Query, candidates []*types.Record, topK int) ([]*types.Record, error) {
	if len(candidates) == 0 {
		return []*types.Record{}, nil
	}

	shortlist, err := cosineSelect(query.Vector, candidates, topK)
	if err != nil {
		return nil, err
	}

	if query.Text != "" {
		reranked, err := bm25Rerank(query.Text, query.Keywords, shortlist, r.K1, r.B)
		if err != nil {
			log.Printf("search: lexical re-ranking degraded, keeping cosine order: %v", err)
		} else {
			shortlist = reranked
		}
	}

	out := make([]*types.Record, len(shortlist))
	for i, cand := range shortlist {
		out[i] = cand.record
	}
	return out, nil
}
