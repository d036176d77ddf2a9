package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"trajrisk/internal/common"
)

type Settings struct {
	LogRoot         string
	ModelDir        string
	DatasetDir      string
	DataPath        string
	Family          string
	Quantile        float64
	ExternalCommand []string
	ExternalTimeout time.Duration
	CoxPenalizer    float64
	CoxMaxIter      int
	Workers         int
	MetricsPort     int
	LogLevel        string
}

type ConfigFile struct {
	Paths struct {
		LogRoot    string `yaml:"logRoot"`
		ModelDir   string `yaml:"modelDir"`
		DatasetDir string `yaml:"datasetDir"`
		DataPath   string `yaml:"dataPath"`
	} `yaml:"paths"`

	Model struct {
		Family          string   `yaml:"family"`
		Quantile        float64  `yaml:"quantile"`
		ExternalCommand []string `yaml:"externalCommand"`
		ExternalTimeout string   `yaml:"externalTimeout"`
		CoxPenalizer    float64  `yaml:"coxPenalizer"`
		CoxMaxIter      int      `yaml:"coxMaxIter"`
	} `yaml:"model"`

	System struct {
		Workers     int    `yaml:"workers"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE
// (if set), then environment overrides, and validates the result.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	externalTimeout := common.DefaultExternalTimeout
	if config.Model.ExternalTimeout != "" {
		externalTimeout, err = time.ParseDuration(config.Model.ExternalTimeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid externalTimeout %q: %w", config.Model.ExternalTimeout, err)
		}
	}

	settings := Settings{
		LogRoot:         getEnvOrDefault(common.EnvLogRoot, orDefault(config.Paths.LogRoot, common.DefaultLogRoot)),
		ModelDir:        getEnvOrDefault(common.EnvModelDir, orDefault(config.Paths.ModelDir, common.DefaultModelDir)),
		DatasetDir:      getEnvOrDefault(common.EnvDatasetDir, orDefault(config.Paths.DatasetDir, common.DefaultDatasetDir)),
		DataPath:        getEnvOrDefault(common.EnvDataPath, config.Paths.DataPath),
		Family:          getEnvOrDefault(common.EnvFamily, orDefault(config.Model.Family, common.DefaultFamily)),
		Quantile:        getFloatFromEnvOrConfig(common.EnvQuantile, config.Model.Quantile, common.DefaultQuantile),
		ExternalCommand: getCommandFromEnvOrConfig(common.EnvExternalCommand, config.Model.ExternalCommand),
		ExternalTimeout: getDurationOrDefault(common.EnvExternalTimeout, externalTimeout),
		CoxPenalizer:    getFloatFromEnvOrConfig(common.EnvCoxPenalizer, config.Model.CoxPenalizer, common.DefaultCoxPenalizer),
		CoxMaxIter:      getIntFromEnvOrConfig(common.EnvCoxMaxIter, config.Model.CoxMaxIter, common.DefaultCoxMaxIter),
		Workers:         getIntFromEnvOrConfig(common.EnvWorkers, config.System.Workers, 0),
		MetricsPort:     getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, common.DefaultMetricsPort),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		LogRoot:         getEnvOrDefault(common.EnvLogRoot, common.DefaultLogRoot),
		ModelDir:        getEnvOrDefault(common.EnvModelDir, common.DefaultModelDir),
		DatasetDir:      getEnvOrDefault(common.EnvDatasetDir, common.DefaultDatasetDir),
		DataPath:        os.Getenv(common.EnvDataPath), // optional
		Family:          getEnvOrDefault(common.EnvFamily, common.DefaultFamily),
		Quantile:        getFloatOrDefault(common.EnvQuantile, common.DefaultQuantile),
		ExternalCommand: strings.Fields(os.Getenv(common.EnvExternalCommand)),
		ExternalTimeout: getDurationOrDefault(common.EnvExternalTimeout, common.DefaultExternalTimeout),
		CoxPenalizer:    getFloatOrDefault(common.EnvCoxPenalizer, common.DefaultCoxPenalizer),
		CoxMaxIter:      getIntOrDefault(common.EnvCoxMaxIter, common.DefaultCoxMaxIter),
		Workers:         getIntOrDefault(common.EnvWorkers, 0),
		MetricsPort:     getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		LogLevel:        getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

func getCommandFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return strings.Fields(env)
	}
	return configValue
}

// Validate re-checks settings, e.g. after command-line overrides.
func (s *Settings) Validate() error {
	if err := validateSettings(s); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// ValidateTraining checks what fitting a model needs on top of Validate.
// Scoring reads the external command from the artifact instead.
func (s *Settings) ValidateTraining() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Family == "external" && len(s.ExternalCommand) == 0 {
		return fmt.Errorf("external family requires %s", common.EnvExternalCommand)
	}
	return nil
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.LogRoot == "" {
		return fmt.Errorf("log root cannot be empty")
	}
	if settings.ModelDir == "" {
		return fmt.Errorf("model directory cannot be empty")
	}
	if settings.DatasetDir == "" {
		return fmt.Errorf("dataset directory cannot be empty")
	}

	// the external command is only needed to fit; see ValidateTraining
	switch settings.Family {
	case "cox", "external":
	default:
		return fmt.Errorf("unknown model family %q (want cox or external)", settings.Family)
	}

	if settings.Quantile <= 0 || settings.Quantile >= 1 {
		return fmt.Errorf("threshold quantile must be in (0, 1), got %f", settings.Quantile)
	}
	if settings.ExternalTimeout < common.MinExternalTimeout || settings.ExternalTimeout > common.MaxExternalTimeout {
		return fmt.Errorf("external timeout must be between %v and %v, got %v",
			common.MinExternalTimeout, common.MaxExternalTimeout, settings.ExternalTimeout)
	}
	if settings.CoxPenalizer < 0 {
		return fmt.Errorf("cox penalizer cannot be negative, got %f", settings.CoxPenalizer)
	}
	if settings.CoxMaxIter <= 0 || settings.CoxMaxIter > common.MaxCoxIter {
		return fmt.Errorf("cox max iterations must be between 1 and %d, got %d", common.MaxCoxIter, settings.CoxMaxIter)
	}
	if settings.Workers < 0 || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("workers must be between 0 and %d, got %d", common.MaxWorkers, settings.Workers)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	return nil
}
