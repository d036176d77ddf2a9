package ml

import (
	"context"
	"fmt"
	"math"
	"sort"

	"trajrisk/internal/dataset"
)

// FeatureImportance measures how much each column contributes to the
// concordance of a fitted model.
type FeatureImportance struct {
	Baseline float64            `json:"baseline_concordance"`
	Scores   map[string]float64 `json:"scores"`
}

// PermutationImportance scores X once as a baseline, then once per column
// with that column's values rotated by one row. A column's importance is
// the concordance lost, floored at zero.
func PermutationImportance(ctx context.Context, model RiskModel, X *dataset.Table, y []dataset.Outcome) (*FeatureImportance, error) {
	if X.Len() != len(y) {
		return nil, fmt.Errorf("%d rows but %d outcomes", X.Len(), len(y))
	}

	base, err := model.Score(ctx, X)
	if err != nil {
		return nil, err
	}
	fi := &FeatureImportance{
		Baseline: ConcordanceIndex(base, y),
		Scores:   make(map[string]float64, len(X.Columns)),
	}

	n := X.Len()
	for j, name := range X.Columns {
		permuted := X.Clone()
		if n > 1 {
			for i := range permuted.Rows {
				permuted.Rows[i][j] = X.Rows[(i+1)%n][j]
			}
		}

		scores, err := model.Score(ctx, permuted)
		if err != nil {
			return nil, err
		}
		fi.Scores[name] = math.Max(0, fi.Baseline-ConcordanceIndex(scores, y))
	}

	return fi, nil
}

// Top returns up to n column names by decreasing importance. Ties keep
// alphabetical order.
func (fi *FeatureImportance) Top(n int) []string {
	names := make([]string, 0, len(fi.Scores))
	for name := range fi.Scores {
		names = append(names, name)
	}
	sort.Slice(names, func(a, b int) bool {
		sa, sb := fi.Scores[names[a]], fi.Scores[names[b]]
		if sa != sb {
			return sa > sb
		}
		return names[a] < names[b]
	})

	if n > len(names) {
		n = len(names)
	}
	return names[:n]
}
