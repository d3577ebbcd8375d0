package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/memtor/pkg/types"
)

// normalize returns the L2-normalized copy of a vector. A zero vector comes
// back unchanged; its dot product with anything is zero anyway.
func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dotProduct(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// scoredRecord pairs a candidate with its current ranking score. The index
// preserves the candidate's position in the input, which serves as the
// tie-break all the way through both stages.
type scoredRecord struct {
	record *types.Record
	score  float64
	index  int
}

// cosineSelect scores every candidate against the query vector and returns
// the top min(topK, len(candidates)) by descending cosine similarity. Both
// sides are L2-normalized before the dot product, so unnormalized embeddings
// rank the same as normalized ones. A candidate whose embedding dimension
// differs from the query's is a fatal input error.
func cosineSelect(query []float64, candidates []*types.Record, topK int) ([]scoredRecord, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("search: %w: query vector is empty", types.ErrInvalidArgument)
	}

	q := normalize(query)
	scored := make([]scoredRecord, 0, len(candidates))
	for i, rec := range candidates {
		if len(rec.Embedding) == 0 {
			// Records without embeddings cannot participate in vector
			// ranking; score them at the floor instead of erroring, so a
			// partially-embedded corpus still searches.
			scored = append(scored, scoredRecord{record: rec, score: math.Inf(-1), index: i})
			continue
		}
		if len(rec.Embedding) != len(query) {
			return nil, fmt.Errorf("search: %w: record %q has dimension %d, query has %d",
				types.ErrDimensionMismatch, rec.ID, len(rec.Embedding), len(query))
		}
		scored = append(scored, scoredRecord{
			record: rec,
			score:  dotProduct(q, normalize(rec.Embedding)),
			index:  i,
		})
	}

	// Stable on score ties: candidates keep their input order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}
