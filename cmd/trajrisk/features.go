package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trajrisk/internal/dataset"
	"trajrisk/internal/features"
	"trajrisk/internal/ml"
	"trajrisk/internal/runlog"
	"trajrisk/internal/storage"
)

var featuresCmd = &cobra.Command{
	Use:   "features <solution.json>",
	Short: "Print the feature record of one run record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := runlog.LoadRecord(args[0])
		if err != nil {
			return err
		}

		record := features.Extract(rec.Coords).Map()
		record[dataset.ColPreVNDCost] = rec.PreVNDCost

		// map keys marshal sorted
		out, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(out))
		return err
	},
}

var (
	datasetOut   string
	datasetStore bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build, prepare and clean the feature table from the run logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := runlog.LoadAll(settings.LogRoot)
		if err != nil {
			return err
		}

		built, err := dataset.NewBuilder(settings.Workers).Build(cmd.Context(), records)
		if err != nil {
			return err
		}

		if datasetStore {
			if err := storeRows(records, built); err != nil {
				return err
			}
		}

		prepared, err := dataset.PrepareSurvival(built)
		if err != nil {
			return err
		}
		cleaned, report := dataset.Clean(prepared, dataset.CleanOptions{Protected: dataset.TargetColumns})

		path := datasetOut
		if path == "" {
			path = filepath.Join(settings.DatasetDir, "features_dataset.csv")
		}
		if err := dataset.WriteCSV(cleaned, path); err != nil {
			return err
		}

		log.Info().
			Int("records", len(records)).
			Int("rows", cleaned.Len()).
			Int("rows_dropped", report.RowsDropped).
			Strs("columns_dropped", report.ColumnsDropped).
			Str("path", path).
			Msg("Feature table written")
		return nil
	},
}

func init() {
	datasetCmd.Flags().StringVarP(&datasetOut, "output", "o", "", "CSV output path (default <dataset-dir>/features_dataset.csv)")
	datasetCmd.Flags().BoolVar(&datasetStore, "store", false, "Also persist built rows to the feature store (needs DATA_PATH)")
}

// storeRows persists built rows per run folder into the feature store.
func storeRows(records []runlog.Record, built *dataset.Table) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := ml.StoreByRun(store, records, built); err != nil {
		return err
	}
	log.Info().Str("data_path", settings.DataPath).Msg("Feature rows stored")
	return nil
}

func openStore() (*storage.Store, error) {
	if settings.DataPath == "" {
		return nil, fmt.Errorf("feature store needs DATA_PATH")
	}
	if err := os.MkdirAll(settings.DataPath, 0o755); err != nil {
		return nil, err
	}
	return storage.New(settings.DataPath)
}
