package dataset

import (
	"context"
	"runtime"
	"slices"

	"trajrisk/internal/features"
	"trajrisk/internal/runlog"

	"golang.org/x/sync/errgroup"
)

// Columns is the schema produced by Build.
var Columns = append(slices.Clone(features.DescriptorFields),
	ColPreVNDCost,
	ColSurvivalTime,
	ColCensored,
	ColInstanceIndex,
)

// FeatureRow computes the feature values of one record in Columns order.
func FeatureRow(rec runlog.Record) []float64 {
	values := features.Extract(rec.Coords).Values()
	return append(values,
		rec.PreVNDCost,
		float64(rec.SurvivalTime),
		boolToFloat(rec.Censored),
		float64(rec.InstanceIndex),
	)
}

// Builder turns run records into a feature table.
type Builder struct {
	workers int
}

// NewBuilder creates a builder extracting features on up to workers
// goroutines. workers <= 0 means GOMAXPROCS.
func NewBuilder(workers int) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{workers: workers}
}

// Build extracts one row per record. Row order matches record order and no
// record is dropped, whatever its geometry.
func (b *Builder) Build(ctx context.Context, records []runlog.Record) (*Table, error) {
	rows := make([][]float64, len(records))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range records {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rows[i] = FeatureRow(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Table{
		Columns: slices.Clone(Columns),
		Rows:    rows,
	}, nil
}

// Build is a convenience wrapper using GOMAXPROCS workers.
func Build(ctx context.Context, records []runlog.Record) (*Table, error) {
	return NewBuilder(0).Build(ctx, records)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
