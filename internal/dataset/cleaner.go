package dataset

import (
	"math"
	"slices"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// LowVarianceEpsilon is the variance below which a column is dropped.
const LowVarianceEpsilon = 1e-9

// CleanOptions configures Clean.
type CleanOptions struct {
	// Protected columns are never dropped for low variance.
	Protected []string
}

// CleanReport describes what Clean removed.
type CleanReport struct {
	RowsBefore     int      `json:"rows_before"`
	RowsDropped    int      `json:"rows_dropped"`
	ColumnsDropped []string `json:"columns_dropped"`
}

// Clean returns a model-ready copy of t:
//
//  1. +Inf and -Inf become 0.
//  2. Rows still holding a NaN are dropped.
//  3. Columns whose sample variance over the remaining rows is below
//     LowVarianceEpsilon are dropped. A column with fewer than two rows has
//     no defined variance and is kept.
//
// Step 1 runs before step 2 so infinities never cost a row. Clean is
// idempotent.
func Clean(t *Table, opts CleanOptions) (*Table, CleanReport) {
	report := CleanReport{RowsBefore: t.Len()}

	out := NewTable(t.Columns)
	for _, row := range t.Rows {
		values := slices.Clone(row)
		hasNaN := false
		for j, v := range values {
			if math.IsInf(v, 0) {
				values[j] = 0
			} else if math.IsNaN(v) {
				hasNaN = true
			}
		}
		if hasNaN {
			report.RowsDropped++
			continue
		}
		out.Rows = append(out.Rows, values)
	}

	var lowVar []string
	for j, name := range out.Columns {
		if out.Len() < 2 || slices.Contains(opts.Protected, name) {
			continue
		}
		col := make([]float64, out.Len())
		for i, row := range out.Rows {
			col[i] = row[j]
		}
		if stat.Variance(col, nil) < LowVarianceEpsilon {
			lowVar = append(lowVar, name)
		}
	}
	if len(lowVar) > 0 {
		out = out.Drop(lowVar...)
	}
	report.ColumnsDropped = lowVar

	log.Info().
		Int("rows_before", report.RowsBefore).
		Int("rows_dropped", report.RowsDropped).
		Strs("columns_dropped", report.ColumnsDropped).
		Msg("Dataset cleaned")

	return out, report
}
