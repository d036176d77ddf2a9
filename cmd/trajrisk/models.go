package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trajrisk/internal/dataset"
	"trajrisk/internal/ml"
	"trajrisk/internal/storage"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and switch registered model versions",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered versions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		mm, err := ml.NewModelManager(settings.ModelDir)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tFAMILY\tCREATED\tSAMPLES\tC-INDEX\tTHRESHOLD\tACTIVE")
		for _, v := range mm.ListVersions() {
			active := ""
			if v.IsActive {
				active = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%.6g\t%s\n",
				v.Version, v.Family, v.CreatedAt.Format(time.RFC3339),
				v.Metrics.TrainingSamples, v.Metrics.Concordance, v.Metrics.Threshold, active)
		}
		return w.Flush()
	},
}

var modelsActivateCmd = &cobra.Command{
	Use:   "activate <version>",
	Short: "Make a registered version the active artifact of its family",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mm, err := ml.NewModelManager(settings.ModelDir)
		if err != nil {
			return err
		}
		return mm.ActivateVersion(args[0])
	},
}

var modelsRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Reactivate the version registered before the active one",
	RunE: func(cmd *cobra.Command, args []string) error {
		mm, err := ml.NewModelManager(settings.ModelDir)
		if err != nil {
			return err
		}
		v, err := mm.Rollback(settings.Family)
		if err != nil {
			return err
		}
		log.Info().Str("version", v.Version).Msg("Rolled back")
		return nil
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Read feature rows persisted in the feature store",
}

var storeRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Runs()
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(runs)
	},
}

var (
	storeRowsCSV     string
	storeRowsColumns []string
)

var storeRowsCmd = &cobra.Command{
	Use:   "rows <run>",
	Short: "Print the stored feature rows of a run as JSON lines, or export them as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if storeRowsCSV != "" {
			return exportStoredRun(store, args[0])
		}
		if len(storeRowsColumns) > 0 {
			return fmt.Errorf("--columns needs --csv")
		}

		records, err := store.LoadRows(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

// exportStoredRun writes a stored run as CSV, optionally keeping only some
// columns.
func exportStoredRun(store *storage.Store, run string) error {
	table, err := store.LoadTable(run)
	if err != nil {
		return err
	}
	if len(storeRowsColumns) > 0 {
		if table, err = table.Select(storeRowsColumns...); err != nil {
			return err
		}
	}
	if err := dataset.WriteCSV(table, storeRowsCSV); err != nil {
		return err
	}
	log.Info().Str("run", run).Int("rows", table.Len()).Str("path", storeRowsCSV).Msg("Stored run exported")
	return nil
}

func init() {
	storeRowsCmd.Flags().StringVar(&storeRowsCSV, "csv", "", "Write the run as a CSV table to this path")
	storeRowsCmd.Flags().StringSliceVar(&storeRowsColumns, "columns", nil, "Columns to keep in the CSV, in order")

	modelsCmd.AddCommand(modelsListCmd, modelsActivateCmd, modelsRollbackCmd)
	storeCmd.AddCommand(storeRunsCmd, storeRowsCmd)
}
