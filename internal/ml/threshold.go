package ml

import (
	"fmt"
	"math"
	"slices"

	"trajrisk/internal/dataset"
)

// DefaultQuantile rejects roughly the riskiest 30% of training trajectories.
const DefaultQuantile = 0.7

// Quantile returns the q-th quantile of values, interpolating linearly
// between closest ranks: h = (n-1)q, result = x[floor h] + frac(h) *
// (x[floor h + 1] - x[floor h]).
func Quantile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("quantile of empty set")
	}
	if q < 0 || q > 1 || math.IsNaN(q) {
		return 0, fmt.Errorf("quantile %v outside [0, 1]", q)
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1], nil
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo]), nil
}

// ConcordanceIndex is Harrell's C for risk scores: the share of comparable
// pairs where the subject that died first has the higher risk. A pair is
// comparable when the earlier time is an observed event. Ties in risk count
// one half. Returns 0.5 when no pair is comparable.
func ConcordanceIndex(risk []float64, y []dataset.Outcome) float64 {
	var concordant, comparable float64
	for i := range y {
		if !y[i].Event {
			continue
		}
		for j := range y {
			if y[i].Time >= y[j].Time {
				continue
			}
			comparable++
			switch {
			case risk[i] > risk[j]:
				concordant++
			case risk[i] == risk[j]:
				concordant += 0.5
			}
		}
	}
	if comparable == 0 {
		return 0.5
	}
	return concordant / comparable
}
