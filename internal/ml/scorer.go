package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"trajrisk/internal/dataset"
)

// MetricsInterface defines metrics methods needed by the scorer
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLRejectsInc()
	MLTimeoutsInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
}

// Decision is the accept/reject verdict derived from a risk score.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// Decide rejects when risk is at or above the threshold.
func Decide(risk, threshold float64) Decision {
	if risk >= threshold {
		return Reject
	}
	return Accept
}

// Reindex aligns a feature row to schema. Columns missing from row become
// 0.0, columns not in schema are dropped, infinities become 0.0.
func Reindex(row dataset.Row, schema []string) *dataset.Table {
	values := make([]float64, len(schema))
	for i, name := range schema {
		v, ok := row[name]
		if !ok || math.IsInf(v, 0) {
			continue
		}
		values[i] = v
	}
	return &dataset.Table{Columns: schema, Rows: [][]float64{values}}
}

// Result is the outcome of scoring one feature row.
type Result struct {
	Risk      float64  `json:"risk"`
	Decision  Decision `json:"decision"`
	Threshold float64  `json:"threshold"`
}

// Scorer holds a loaded artifact and scores any number of feature rows
// against it.
type Scorer struct {
	artifact *Artifact
	metrics  MetricsInterface
	version  string
	loadedAt time.Time
	mu       sync.RWMutex
}

// NewScorer wraps an already loaded artifact.
func NewScorer(artifact *Artifact, metrics MetricsInterface) *Scorer {
	return &Scorer{artifact: artifact, metrics: metrics, loadedAt: time.Now()}
}

// LoadScorer reads the artifact of family from modelDir once.
func LoadScorer(modelDir, family string, metrics MetricsInterface) (*Scorer, error) {
	artifact, err := LoadArtifact(modelDir, family)
	if err != nil {
		return nil, err
	}

	s := NewScorer(artifact, metrics)
	if info, err := os.Stat(ModelPath(modelDir, family)); err == nil && metrics != nil {
		metrics.MLModelAgeSet(time.Since(info.ModTime()).Seconds())
	}

	log.Info().
		Str("family", family).
		Int("features", len(artifact.Schema)).
		Float64("threshold", artifact.Meta.Threshold).
		Msg("Model artifact loaded")
	return s, nil
}

// SetVersion labels the scorer with a registry version id.
func (s *Scorer) SetVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
}

// Version returns the registry version id, if any.
func (s *Scorer) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Swap replaces the artifact in place, used after a registry activation.
func (s *Scorer) Swap(artifact *Artifact, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = artifact
	s.version = version
	s.loadedAt = time.Now()
}

// Artifact returns the artifact currently in use.
func (s *Scorer) Artifact() *Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifact
}

// Threshold returns the stored decision threshold.
func (s *Scorer) Threshold() float64 {
	return s.Artifact().Meta.Threshold
}

// Score reindexes row to the model schema and returns its risk and decision.
func (s *Scorer) Score(ctx context.Context, row dataset.Row) (Result, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	artifact := s.Artifact()
	X := Reindex(row, artifact.Schema)

	scores, err := artifact.Model.Score(ctx, X)
	if err != nil {
		if s.metrics != nil {
			s.metrics.MLFailuresInc()
			if errors.Is(err, ErrTimeout) {
				s.metrics.MLTimeoutsInc()
			}
		}
		return Result{}, fmt.Errorf("scoring failed: %w", err)
	}
	if len(scores) != 1 {
		if s.metrics != nil {
			s.metrics.MLFailuresInc()
		}
		return Result{}, fmt.Errorf("model returned %d scores for one row", len(scores))
	}

	risk := scores[0]
	decision := Decide(risk, artifact.Meta.Threshold)

	if s.metrics != nil {
		s.metrics.MLPredictionsInc()
		s.metrics.MLPredictionScoresObserve(risk)
		if decision == Reject {
			s.metrics.MLRejectsInc()
		}
	}

	log.Debug().
		Float64("risk", risk).
		Str("decision", string(decision)).
		Msg("Scored feature row")

	return Result{Risk: risk, Decision: decision, Threshold: artifact.Meta.Threshold}, nil
}

// ScoreJSON decodes a flat JSON feature record and scores it.
func (s *Scorer) ScoreJSON(ctx context.Context, data []byte) (Result, error) {
	row, err := ParseFeatureRecord(data, s.Artifact().Schema)
	if err != nil {
		return Result{}, err
	}
	return s.Score(ctx, row)
}

// ParseFeatureRecord decodes a flat JSON object into a feature row. Values
// may be numbers, booleans or null. A non-numeric value under a schema
// column is a schema error; other keys are ignored.
func ParseFeatureRecord(data []byte, schema []string) (dataset.Row, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: feature record is not a JSON object: %v", ErrSchema, err)
	}

	row := make(dataset.Row, len(schema))
	for _, name := range schema {
		msg, ok := raw[name]
		if !ok {
			continue
		}
		v, err := featureValue(msg)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrSchema, name, err)
		}
		row[name] = v
	}
	return row, nil
}

func featureValue(msg json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(msg)
	switch string(trimmed) {
	case "null":
		return 0, nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	if !isNumberLiteral(trimmed) {
		return 0, fmt.Errorf("value %s is not numeric", trimmed)
	}
	// out-of-range literals keep their ±Inf value; Reindex zeroes them
	v, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("value %s is not numeric", trimmed)
	}
	return v, nil
}

func isNumberLiteral(b []byte) bool {
	if len(b) == 0 || !json.Valid(b) {
		return false
	}
	return b[0] == '-' || (b[0] >= '0' && b[0] <= '9')
}
