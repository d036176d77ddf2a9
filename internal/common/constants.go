package common

import "time"

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvLogRoot         = "TRAJRISK_LOG_ROOT"
	EnvModelDir        = "TRAJRISK_MODEL_DIR"
	EnvDatasetDir      = "TRAJRISK_DATASET_DIR"
	EnvDataPath        = "DATA_PATH"
	EnvFamily          = "MODEL_FAMILY"
	EnvQuantile        = "THRESHOLD_QUANTILE"
	EnvExternalCommand = "EXTERNAL_MODEL_COMMAND"
	EnvExternalTimeout = "EXTERNAL_MODEL_TIMEOUT"
	EnvCoxPenalizer    = "COX_PENALIZER"
	EnvCoxMaxIter      = "COX_MAX_ITER"
	EnvWorkers         = "WORKERS"
	EnvMetricsPort     = "METRICS_PORT"
	EnvLogLevel        = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultLogRoot         = "solutions/ml_logs"
	DefaultModelDir        = "ml/models"
	DefaultDatasetDir      = "ml/dataset"
	DefaultFamily          = "cox"
	DefaultQuantile        = 0.7
	DefaultExternalTimeout = 30 * time.Second
	DefaultCoxPenalizer    = 0.0
	DefaultCoxMaxIter      = 50
	DefaultMetricsPort     = 8080
	DefaultLogLevel        = "info"
)

// Limits enforced by configuration validation
const (
	MaxWorkers         = 1024
	MaxCoxIter         = 10000
	MinExternalTimeout = 100 * time.Millisecond
	MaxExternalTimeout = time.Hour
)
