package signal

import (
	"math"
	"sort"
)

// BenjaminiHochberg returns BH-adjusted q-values in the order of pvalues.
//
// NaN p-values are left out of the family (they do not count towards m) and
// map to NaN. q-values are capped at 1. Empty input yields empty output.
func BenjaminiHochberg(pvalues []float64) []float64 {
	q := make([]float64, len(pvalues))

	idx := make([]int, 0, len(pvalues))
	for i, p := range pvalues {
		if math.IsNaN(p) {
			q[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}

	m := len(idx)
	if m == 0 {
		return q
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return pvalues[idx[a]] < pvalues[idx[b]]
	})

	// Step up from the largest p-value, carrying the running minimum.
	running := math.Inf(1)
	for rank := m; rank >= 1; rank-- {
		i := idx[rank-1]
		adjusted := pvalues[i] * float64(m) / float64(rank)
		if adjusted < running {
			running = adjusted
		}
		q[i] = math.Min(running, 1)
	}
	return q
}
