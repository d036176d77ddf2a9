package ml

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trajrisk/internal/dataset"
)

// linearArtifact scores exp(a + 2b) with threshold 1.0.
func linearArtifact() *Artifact {
	return &Artifact{
		Model: &CoxModel{
			Coefficients: map[string]float64{"a": 1, "b": 2},
			Norm: map[string]NormStat{
				"a": {Mean: 0, Std: 1},
				"b": {Mean: 0, Std: 1},
			},
		},
		Schema: []string{"a", "b"},
		Meta:   Metadata{Threshold: 1.0, Quantile: 0.7, NSamples: 10},
	}
}

func TestDecide_BoundaryRejects(t *testing.T) {
	assert.Equal(t, Reject, Decide(1.0, 1.0))
	assert.Equal(t, Reject, Decide(1.5, 1.0))
	assert.Equal(t, Accept, Decide(0.999, 1.0))
}

func TestReindex(t *testing.T) {
	row := dataset.Row{"b": 2, "extra": 9, "a": 1}

	got := Reindex(row, []string{"a", "c", "b"})
	assert.Equal(t, []string{"a", "c", "b"}, got.Columns)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, []float64{1, 0, 2}, got.Rows[0])
}

func TestReindex_InfinityBecomesZero(t *testing.T) {
	got := Reindex(dataset.Row{"a": math.Inf(1), "b": math.Inf(-1)}, []string{"a", "b"})
	assert.Equal(t, []float64{0, 0}, got.Rows[0])
}

func TestScorer_BoundaryScoreIsRejected(t *testing.T) {
	s := NewScorer(linearArtifact(), nil)

	// exp(0) == threshold
	res, err := s.Score(context.Background(), dataset.Row{"a": 0, "b": 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Risk)
	assert.Equal(t, Reject, res.Decision)

	res, err = s.Score(context.Background(), dataset.Row{"a": -1})
	require.NoError(t, err)
	assert.Equal(t, Accept, res.Decision)
}

func TestScorer_MissingColumnEqualsExplicitZero(t *testing.T) {
	s := NewScorer(linearArtifact(), nil)

	missing, err := s.ScoreJSON(context.Background(), []byte(`{"a": 0.25}`))
	require.NoError(t, err)
	explicit, err := s.ScoreJSON(context.Background(), []byte(`{"a": 0.25, "b": 0.0}`))
	require.NoError(t, err)

	assert.Equal(t, explicit.Risk, missing.Risk)
}

func TestScorer_OverflowingNumberScoresAsZero(t *testing.T) {
	s := NewScorer(linearArtifact(), nil)

	explicit, err := s.ScoreJSON(context.Background(), []byte(`{"a": 0, "b": 0}`))
	require.NoError(t, err)

	for _, body := range []string{`{"a": 1e999, "b": 0}`, `{"a": -1e999, "b": 0}`} {
		res, err := s.ScoreJSON(context.Background(), []byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, explicit.Risk, res.Risk, body)
		assert.Equal(t, explicit.Decision, res.Decision, body)
	}
}

func TestScorer_ExtraColumnsIgnored(t *testing.T) {
	s := NewScorer(linearArtifact(), nil)

	plain, err := s.ScoreJSON(context.Background(), []byte(`{"a": 0.5, "b": 0.1}`))
	require.NoError(t, err)
	extra, err := s.ScoreJSON(context.Background(), []byte(`{"a": 0.5, "b": 0.1, "label": "x", "z": 42}`))
	require.NoError(t, err)

	assert.Equal(t, plain.Risk, extra.Risk)
}

func TestScorer_RepeatedCallsRecordMetrics(t *testing.T) {
	metrics := &MockMetrics{}
	s := NewScorer(linearArtifact(), metrics)

	for i := 0; i < 5; i++ {
		_, err := s.Score(context.Background(), dataset.Row{"a": float64(i)})
		require.NoError(t, err)
	}

	predictions, failures, rejects, _ := metrics.counts()
	assert.Equal(t, 5, predictions)
	assert.Equal(t, 0, failures)
	// a=0 sits on the threshold, a>0 above it
	assert.Equal(t, 5, rejects)
}

func TestParseFeatureRecord(t *testing.T) {
	schema := []string{"a", "flag", "gone", "n"}

	row, err := ParseFeatureRecord([]byte(`{"a": 1.5, "flag": true, "n": null, "other": "text"}`), schema)
	require.NoError(t, err)
	assert.Equal(t, dataset.Row{"a": 1.5, "flag": 1, "n": 0}, row)

	_, err = ParseFeatureRecord([]byte(`{"a": "1.5"}`), schema)
	assert.True(t, errors.Is(err, ErrSchema))

	_, err = ParseFeatureRecord([]byte(`[1, 2]`), schema)
	assert.True(t, errors.Is(err, ErrSchema))

	_, err = ParseFeatureRecord([]byte(`{"a": [1]}`), schema)
	assert.True(t, errors.Is(err, ErrSchema))

	row, err = ParseFeatureRecord([]byte(`{"a": 1e999, "n": -1e999}`), schema)
	require.NoError(t, err)
	assert.True(t, math.IsInf(row["a"], 1))
	assert.True(t, math.IsInf(row["n"], -1))
}

type failingModel struct{ err error }

func (m failingModel) Family() string { return "failing" }
func (m failingModel) Score(context.Context, *dataset.Table) ([]float64, error) {
	return nil, m.err
}
func (m failingModel) State() (json.RawMessage, error) { return nil, nil }

func TestScorer_ModelFailureCountsTimeouts(t *testing.T) {
	metrics := &MockMetrics{}
	artifact := linearArtifact()
	artifact.Model = failingModel{err: ErrTimeout}
	s := NewScorer(artifact, metrics)

	_, err := s.Score(context.Background(), dataset.Row{"a": 1})
	assert.True(t, errors.Is(err, ErrTimeout))

	_, failures, _, timeouts := metrics.counts()
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, timeouts)
}
