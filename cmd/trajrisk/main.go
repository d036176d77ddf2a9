package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trajrisk/internal/cfg"
	"trajrisk/internal/ml"
)

var (
	settings cfg.Settings

	logLevel   string
	logRoot    string
	modelDir   string
	datasetDir string
	family     string
)

var rootCmd = &cobra.Command{
	Use:           "trajrisk",
	Short:         "Survival-based risk scoring of solver trajectories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := cfg.Load()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, &s)
		if err := s.Validate(); err != nil {
			return err
		}
		settings = s
		return setupLogging(settings.LogLevel)
	},
}

func init() {
	// stdout belongs to command output; diagnostics go to stderr
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&logRoot, "log-root", "", "Root directory of solver run logs")
	flags.StringVar(&modelDir, "model-dir", "", "Directory holding model artifacts")
	flags.StringVar(&datasetDir, "dataset-dir", "", "Directory for exported feature tables")
	flags.StringVar(&family, "family", "", "Model family (cox, external)")

	rootCmd.AddCommand(featuresCmd, datasetCmd, trainCmd, scoreCmd, serveCmd, modelsCmd, storeCmd)
}

func applyFlagOverrides(cmd *cobra.Command, s *cfg.Settings) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.LogLevel = logLevel
	}
	if flags.Changed("log-root") {
		s.LogRoot = logRoot
	}
	if flags.Changed("model-dir") {
		s.ModelDir = modelDir
	}
	if flags.Changed("dataset-dir") {
		s.DatasetDir = datasetDir
	}
	if flags.Changed("family") {
		s.Family = family
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func familyOptions(s cfg.Settings) ml.FamilyOptions {
	return ml.FamilyOptions{
		CoxPenalizer:    s.CoxPenalizer,
		CoxMaxIter:      s.CoxMaxIter,
		ExternalCommand: s.ExternalCommand,
		ExternalTimeout: s.ExternalTimeout,
		WorkDir:         s.ModelDir,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
