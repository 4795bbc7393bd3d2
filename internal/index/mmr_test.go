package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float64{1}, []float64{1, 1}))
}

func TestTopKOrdersBySimilarity(t *testing.T) {
	vectors := [][]float64{{0, 1}, {1, 0}, {1, 1}}
	assert.Equal(t, []int{1, 2}, TopK([]float64{1, 0.1}, vectors, 2))
	assert.Len(t, TopK([]float64{1, 0}, vectors, 10), 3)
}

func TestMMRPrefersDiverseCandidates(t *testing.T) {
	query := []float64{1, 0.2}
	candidates := [][]float64{
		{1, 0},
		{0.99, 0.01},
		{0.7, 0.7},
	}

	// 第一个选相关性最高的，第二个因与已选几乎相同而让位于更分散的候选
	assert.Equal(t, []int{1, 2}, MMR(query, candidates, 2, 0.5))
	// lambda=1 时退化为纯相关性排序
	assert.Equal(t, []int{1, 0}, MMR(query, candidates, 2, 1))
}

func TestMMRHandlesSmallCandidateSets(t *testing.T) {
	assert.Nil(t, MMR([]float64{1}, nil, 5, 0.5))
	assert.Len(t, MMR([]float64{1, 0}, [][]float64{{1, 0}, {0, 1}}, 5, 0.5), 2)
}

func TestSearchParamsNormalize(t *testing.T) {
	p := SearchParams{}.normalize()
	assert.Equal(t, DefaultSearchParams(), p)

	p = SearchParams{K: 8, FetchK: 3, Lambda: 2}.normalize()
	assert.Equal(t, 8, p.K)
	assert.Equal(t, 8, p.FetchK)
	assert.Equal(t, 0.5, p.Lambda)
}
