package index

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// toFloat64 把 embedding 向量转为 gonum 使用的 float64 切片。
func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Cosine 返回两个向量的余弦相似度，长度不同或任一为零向量时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// TopK 按与 query 的相似度降序返回前 k 个候选的下标。
func TopK(query []float64, vectors [][]float64, k int) []int {
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{idx: i, score: Cosine(query, v)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if k > len(all) {
		k = len(all)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].idx
	}
	return out
}

// MMR 在候选向量中做最大边际相关性选择，返回被选中候选的下标，顺序即选择顺序。
// 得分为 lambda*sim(query, d) - (1-lambda)*max(sim(d, 已选))。
func MMR(query []float64, candidates [][]float64, k int, lambda float64) []int {
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = Cosine(query, c)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	for len(selected) < k {
		best, bestScore := -1, 0.0
		for i, c := range candidates {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for j, s := range selected {
				sim := Cosine(c, candidates[s])
				if j == 0 || sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
	}
	return selected
}
