package memory

import (
	"context"
	"math/bits"
	"sort"

	"mimogate/internal/gwtypes"
	"mimogate/internal/store"
)

// corpusTierSmall/Medium are the spec's N thresholds for the
// corpus-size-aware retrieval strategy (§4.5.3).
const (
	corpusTierSmall  = 500
	corpusTierMedium = 1000
)

// Retrieve runs the corpus-size-appropriate search strategy for query
// and returns up to limit (engram, similarity) pairs, all contract-
// identical regardless of which tier served them.
func Retrieve(ctx context.Context, es *store.EngramStore, query []float32, limit int) ([]gwtypes.Scored, error) {
	n, err := es.Count(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case n < corpusTierSmall:
		return es.ExactScan(ctx, query, limit)
	case n < corpusTierMedium:
		return hammingTwoStage(ctx, es, query, limit)
	default:
		return es.ANNSearch(ctx, query, limit)
	}
}

// hammingTwoStage implements the 500<=N<1000 tier: take the top ~10x
// requested by Hamming distance on binary embeddings, then rescore
// exactly (spec §4.5.3).
func hammingTwoStage(ctx context.Context, es *store.EngramStore, query []float32, limit int) ([]gwtypes.Scored, error) {
	candidates, err := es.HammingCandidates(ctx)
	if err != nil {
		return nil, err
	}
	queryBinary := quantizeBinary(query)

	type ranked struct {
		engram gwtypes.Engram
		dist   int
	}
	scored := make([]ranked, 0, len(candidates))
	for _, e := range candidates {
		scored = append(scored, ranked{engram: e, dist: hammingDistance(queryBinary, e.EmbeddingBinary)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].dist < scored[j].dist })

	prefilter := limit * 10
	if prefilter <= 0 || prefilter > len(scored) {
		prefilter = len(scored)
	}
	top := make([]gwtypes.Engram, prefilter)
	for i := 0; i < prefilter; i++ {
		top[i] = scored[i].engram
	}

	out := es.RescoreExact(query, top)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// quantizeBinary packs a float32 embedding into a 1-bit-per-dimension
// representation: bit set when the component is >= 0.
func quantizeBinary(vec []float32) []byte {
	out := make([]byte, (len(vec)+7)/8)
	for i, v := range vec {
		if v >= 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func hammingDistance(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dist := 0
	for i := 0; i < n; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	dist += 8 * (len(a) + len(b) - 2*n)
	return dist
}
