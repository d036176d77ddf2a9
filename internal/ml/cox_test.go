package ml

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trajrisk/internal/dataset"
)

// hazardData has risk increasing with x, with a few swapped pairs so the
// likelihood has a finite maximum.
func hazardData() (*dataset.Table, []dataset.Outcome) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	times := []float64{10, 9, 7, 8, 6, 4, 5, 3, 2, 1}
	X := dataset.NewTable([]string{"x", "noise"})
	y := make([]dataset.Outcome, len(xs))
	for i, x := range xs {
		_ = X.Append([]float64{x, float64(i % 3)})
		y[i] = dataset.Outcome{Time: times[i], Event: i != 0}
	}
	return X, y
}

func TestCoxFit_HigherRiskCovariateGetsPositiveCoefficient(t *testing.T) {
	X, y := hazardData()
	family := &CoxFamily{Penalizer: 0.01}

	model, err := family.Fit(context.Background(), X, y)
	require.NoError(t, err)

	cox := model.(*CoxModel)
	assert.Greater(t, cox.Coefficients["x"], 0.0)
	assert.InDelta(t, 5.5, cox.Norm["x"].Mean, 1e-12)

	scores, err := model.Score(context.Background(), X)
	require.NoError(t, err)
	assert.Greater(t, ConcordanceIndex(scores, y), 0.8)
}

func TestCoxFit_NoEvents(t *testing.T) {
	X, y := hazardData()
	for i := range y {
		y[i].Event = false
	}

	_, err := (&CoxFamily{}).Fit(context.Background(), X, y)
	assert.True(t, errors.Is(err, ErrFit))
}

func TestCoxFit_RowOutcomeMismatch(t *testing.T) {
	X, y := hazardData()
	_, err := (&CoxFamily{}).Fit(context.Background(), X, y[:3])
	assert.True(t, errors.Is(err, ErrFit))
}

func TestCoxFit_CancelledContext(t *testing.T) {
	X, y := hazardData()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&CoxFamily{Penalizer: 0.01}).Fit(ctx, X, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoxScore_IgnoresUnknownColumnsAndConstantScale(t *testing.T) {
	m := &CoxModel{
		Coefficients: map[string]float64{"a": 2, "flat": 1},
		Norm: map[string]NormStat{
			"a":    {Mean: 1, Std: 2},
			"flat": {Mean: 3, Std: 0},
		},
	}
	X := &dataset.Table{
		Columns: []string{"a", "flat", "other"},
		Rows:    [][]float64{{3, 0, 100}},
	}

	scores, err := m.Score(context.Background(), X)
	require.NoError(t, err)
	// a standardizes to 1, flat is left raw at 0
	assert.InDelta(t, 7.38905609893065, scores[0], 1e-9)
}

func TestCoxDecode(t *testing.T) {
	_, err := (&CoxFamily{}).Decode([]byte(`{"coefficients":{}}`))
	assert.True(t, errors.Is(err, ErrModelLoad))

	_, err = (&CoxFamily{}).Decode([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrModelLoad))

	m, err := (&CoxFamily{}).Decode([]byte(`{"coefficients":{"a":0.5},"norm":{"a":{"mean":0,"std":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, FamilyCox, m.Family())
}

func TestNewFamily(t *testing.T) {
	f, err := NewFamily(FamilyCox, FamilyOptions{CoxMaxIter: 10})
	require.NoError(t, err)
	assert.Equal(t, FamilyCox, f.Name())

	_, err = NewFamily(FamilyExternal, FamilyOptions{})
	assert.Error(t, err)

	_, err = NewFamily("rsf", FamilyOptions{})
	assert.Error(t, err)
}
