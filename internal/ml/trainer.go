package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"trajrisk/internal/dataset"
	"trajrisk/internal/runlog"
)

// FeatureSink persists built feature rows per run.
type FeatureSink interface {
	StoreRows(runKey string, t *dataset.Table) error
}

// TrainConfig drives one training run.
type TrainConfig struct {
	LogRoot    string
	ModelDir   string
	DatasetDir string
	Family     string
	Quantile   float64
	Workers    int
	Options    FamilyOptions

	// Sink is optional.
	Sink FeatureSink
	// Importance stores permutation importance in the metadata.
	Importance bool
	// Register adds the artifact to the model registry and activates it.
	Register bool
}

// TrainResult summarizes a finished training run.
type TrainResult struct {
	Artifact    *Artifact
	DatasetPath string
	Clean       dataset.CleanReport
	Version     *ModelVersion
}

// Train loads run logs, builds and cleans the feature table, fits the
// configured family and writes the artifact with its threshold.
func Train(ctx context.Context, cfg TrainConfig) (*TrainResult, error) {
	quantile := cfg.Quantile
	if quantile == 0 {
		quantile = DefaultQuantile
	}
	if quantile <= 0 || quantile >= 1 {
		return nil, fmt.Errorf("quantile %v outside (0, 1)", quantile)
	}

	opts := cfg.Options
	if opts.WorkDir == "" {
		opts.WorkDir = cfg.ModelDir
	}
	family, err := NewFamily(cfg.Family, opts)
	if err != nil {
		return nil, err
	}

	records, err := runlog.LoadAll(cfg.LogRoot)
	if err != nil {
		return nil, err
	}
	log.Info().Int("records", len(records)).Str("log_root", cfg.LogRoot).Msg("Run records loaded")

	built, err := dataset.NewBuilder(cfg.Workers).Build(ctx, records)
	if err != nil {
		return nil, err
	}

	if cfg.Sink != nil {
		if err := StoreByRun(cfg.Sink, records, built); err != nil {
			return nil, err
		}
	}

	prepared, err := dataset.PrepareSurvival(built)
	if err != nil {
		return nil, err
	}
	cleaned, report := dataset.Clean(prepared, dataset.CleanOptions{Protected: dataset.TargetColumns})

	datasetPath := filepath.Join(cfg.DatasetDir, family.Name()+"_dataset.csv")
	if err := dataset.WriteCSV(cleaned, datasetPath); err != nil {
		return nil, fmt.Errorf("failed to export dataset: %w", err)
	}
	log.Info().Str("path", datasetPath).Int("rows", cleaned.Len()).Msg("Cleaned dataset exported")

	X, y, err := dataset.SplitSurvival(cleaned)
	if err != nil {
		return nil, err
	}
	if X.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows left after cleaning", ErrFit)
	}

	model, err := family.Fit(ctx, X, y)
	if err != nil {
		return nil, err
	}

	scores, err := model.Score(ctx, X)
	if err != nil {
		return nil, fmt.Errorf("failed to score training data: %w", err)
	}
	threshold, err := Quantile(scores, quantile)
	if err != nil {
		return nil, err
	}
	cIndex := ConcordanceIndex(scores, y)

	var importance map[string]float64
	if cfg.Importance {
		fi, err := PermutationImportance(ctx, model, X, y)
		if err != nil {
			return nil, fmt.Errorf("failed to compute feature importance: %w", err)
		}
		importance = fi.Scores
		log.Info().Strs("top_features", fi.Top(3)).Msg("Permutation importance computed")
	}

	artifact := &Artifact{
		Model:  model,
		Schema: X.Columns,
		Meta: Metadata{
			Threshold:   threshold,
			Quantile:    quantile,
			NSamples:    X.Len(),
			Family:      family.Name(),
			Concordance: cIndex,
			TrainedAt:   time.Now().UTC(),
			Importance:  importance,
		},
	}
	if err := SaveArtifact(cfg.ModelDir, artifact); err != nil {
		return nil, err
	}

	log.Info().
		Str("family", family.Name()).
		Int("samples", X.Len()).
		Int("features", len(X.Columns)).
		Float64("concordance", cIndex).
		Float64("threshold", threshold).
		Float64("quantile", quantile).
		Msg("Model trained")

	result := &TrainResult{Artifact: artifact, DatasetPath: datasetPath, Clean: report}

	if cfg.Register {
		mm, err := NewModelManager(cfg.ModelDir)
		if err != nil {
			return nil, err
		}
		version, err := mm.AddVersion(family.Name(), ModelMetrics{
			Concordance:     cIndex,
			Threshold:       threshold,
			Quantile:        quantile,
			TrainingSamples: X.Len(),
		})
		if err != nil {
			return nil, err
		}
		if err := mm.ActivateVersion(version.Version); err != nil {
			return nil, err
		}
		version.IsActive = true
		result.Version = &version
	}

	return result, nil
}

// StoreByRun hands the rows of each run folder to sink. Rows of t follow
// the order of records.
func StoreByRun(sink FeatureSink, records []runlog.Record, t *dataset.Table) error {
	var runs []string
	byRun := make(map[string]*dataset.Table)
	for i, rec := range records {
		part, ok := byRun[rec.RunFolder]
		if !ok {
			part = dataset.NewTable(t.Columns)
			byRun[rec.RunFolder] = part
			runs = append(runs, rec.RunFolder)
		}
		if err := part.Append(t.Rows[i]); err != nil {
			return err
		}
	}
	for _, run := range runs {
		if err := sink.StoreRows(run, byRun[run]); err != nil {
			return fmt.Errorf("failed to store rows of run %s: %w", run, err)
		}
	}
	return nil
}
