package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trajrisk/internal/metrics"
	"trajrisk/internal/ml"
)

var (
	trainQuantile    float64
	trainImportance  bool
	trainNoRegister  bool
	trainMetricsFile string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a risk model on the run logs and store its artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := settings.ValidateTraining(); err != nil {
			return err
		}

		quantile := settings.Quantile
		if cmd.Flags().Changed("quantile") {
			quantile = trainQuantile
		}

		tc := ml.TrainConfig{
			LogRoot:    settings.LogRoot,
			ModelDir:   settings.ModelDir,
			DatasetDir: settings.DatasetDir,
			Family:     settings.Family,
			Quantile:   quantile,
			Workers:    settings.Workers,
			Options:    familyOptions(settings),
			Importance: trainImportance,
			Register:   !trainNoRegister,
		}

		if settings.DataPath != "" {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			tc.Sink = store
		}

		start := time.Now()
		result, err := ml.Train(cmd.Context(), tc)
		if err != nil {
			return err
		}

		if trainMetricsFile != "" {
			registry := prometheus.NewRegistry()
			m := metrics.NewWithRegistry(registry)
			m.ObserveTraining(
				result.Clean.RowsBefore,
				result.Clean.RowsDropped,
				len(result.Clean.ColumnsDropped),
				time.Since(start).Seconds(),
				result.Artifact.Meta.Concordance,
				result.Artifact.Meta.Threshold,
			)
			if err := prometheus.WriteToTextfile(trainMetricsFile, registry); err != nil {
				return err
			}
		}

		event := log.Info().
			Str("family", result.Artifact.Model.Family()).
			Str("dataset", result.DatasetPath).
			Float64("threshold", result.Artifact.Meta.Threshold).
			Dur("elapsed", time.Since(start))
		if result.Version != nil {
			event = event.Str("version", result.Version.Version)
		}
		event.Msg("Training complete")
		return nil
	},
}

func init() {
	trainCmd.Flags().Float64Var(&trainQuantile, "quantile", ml.DefaultQuantile, "Risk quantile used as the reject threshold")
	trainCmd.Flags().BoolVar(&trainImportance, "importance", false, "Store permutation feature importance in the metadata")
	trainCmd.Flags().BoolVar(&trainNoRegister, "no-register", false, "Do not add the artifact to the model registry")
	trainCmd.Flags().StringVar(&trainMetricsFile, "metrics-file", "", "Write training metrics in Prometheus text format")
}
