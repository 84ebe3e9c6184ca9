package repository

import (
	"math"
	"sort"
)

// cosineSimilarity returns 0 for vectors of different dimension or zero magnitude
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type candidate struct {
	id        string
	document  string
	embedding []float32
}

// rankCandidates scores candidates given in insertion order. Equal scores keep insertion order.
func rankCandidates(query []float32, candidates []candidate, limit int) []*Match {
	matches := make([]*Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, &Match{
			ID:       c.id,
			Document: c.document,
			Score:    cosineSimilarity(query, c.embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// CosineSimilarityForTest is a test helper that exposes cosineSimilarity
func CosineSimilarityForTest(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
