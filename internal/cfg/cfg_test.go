package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trajrisk/internal/common"
)

var allKeys = []string{
	common.EnvConfigFile, common.EnvLogRoot, common.EnvModelDir, common.EnvDatasetDir,
	common.EnvDataPath, common.EnvFamily, common.EnvQuantile, common.EnvExternalCommand,
	common.EnvExternalTimeout, common.EnvCoxPenalizer, common.EnvCoxMaxIter,
	common.EnvWorkers, common.EnvMetricsPort, common.EnvLogLevel,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.LogRoot != common.DefaultLogRoot {
					t.Errorf("expected default LogRoot, got %s", settings.LogRoot)
				}
				if settings.ModelDir != common.DefaultModelDir {
					t.Errorf("expected default ModelDir, got %s", settings.ModelDir)
				}
				if settings.Family != "cox" {
					t.Errorf("expected default family cox, got %s", settings.Family)
				}
				if settings.Quantile != 0.7 {
					t.Errorf("expected default quantile 0.7, got %f", settings.Quantile)
				}
				if settings.ExternalTimeout != 30*time.Second {
					t.Errorf("expected default external timeout 30s, got %v", settings.ExternalTimeout)
				}
				if settings.CoxMaxIter != 50 {
					t.Errorf("expected default cox max iter 50, got %d", settings.CoxMaxIter)
				}
				if settings.DataPath != "" {
					t.Errorf("expected empty DataPath, got %s", settings.DataPath)
				}
			},
		},
		{
			name: "custom paths and external family",
			envVars: map[string]string{
				common.EnvLogRoot:         "/data/logs",
				common.EnvModelDir:        "/data/models",
				common.EnvFamily:          "external",
				common.EnvExternalCommand: "python3 train_rsf.py",
				common.EnvExternalTimeout: "2m",
				common.EnvQuantile:        "0.8",
				common.EnvWorkers:         "4",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.LogRoot != "/data/logs" {
					t.Errorf("expected LogRoot /data/logs, got %s", settings.LogRoot)
				}
				if len(settings.ExternalCommand) != 2 || settings.ExternalCommand[1] != "train_rsf.py" {
					t.Errorf("unexpected external command %v", settings.ExternalCommand)
				}
				if settings.ExternalTimeout != 2*time.Minute {
					t.Errorf("expected timeout 2m, got %v", settings.ExternalTimeout)
				}
				if settings.Quantile != 0.8 {
					t.Errorf("expected quantile 0.8, got %f", settings.Quantile)
				}
				if settings.Workers != 4 {
					t.Errorf("expected 4 workers, got %d", settings.Workers)
				}
			},
		},
		{
			name:    "external family without command loads for scoring",
			envVars: map[string]string{common.EnvFamily: "external"},
			validate: func(t *testing.T, settings Settings) {
				if err := settings.Validate(); err != nil {
					t.Errorf("expected scoring settings to validate, got %v", err)
				}
				if err := settings.ValidateTraining(); err == nil {
					t.Error("expected training validation to require a command")
				}
			},
		},
		{
			name:    "unknown family",
			envVars: map[string]string{common.EnvFamily: "svm"},
			wantErr: true,
		},
		{
			name:    "invalid number falls back to default",
			envVars: map[string]string{common.EnvCoxMaxIter: "many"},
			validate: func(t *testing.T, settings Settings) {
				if settings.CoxMaxIter != 50 {
					t.Errorf("expected fallback 50, got %d", settings.CoxMaxIter)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	yamlContent := `
paths:
  logRoot: runs/logs
  modelDir: runs/models
  datasetDir: runs/dataset
  dataPath: runs/store
model:
  family: external
  quantile: 0.75
  externalCommand: ["python3", "gbsa.py"]
  externalTimeout: 45s
  coxPenalizer: 0.1
system:
  workers: 8
  metricsPort: 9100
  logLevel: debug
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(common.EnvConfigFile, configPath)
	t.Setenv(common.EnvModelDir, "/override/models")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if settings.LogRoot != "runs/logs" {
		t.Errorf("expected LogRoot runs/logs, got %s", settings.LogRoot)
	}
	if settings.ModelDir != "/override/models" {
		t.Errorf("expected env override for ModelDir, got %s", settings.ModelDir)
	}
	if settings.DataPath != "runs/store" {
		t.Errorf("expected DataPath runs/store, got %s", settings.DataPath)
	}
	if settings.Quantile != 0.75 {
		t.Errorf("expected quantile 0.75, got %f", settings.Quantile)
	}
	if settings.ExternalTimeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", settings.ExternalTimeout)
	}
	if settings.CoxPenalizer != 0.1 {
		t.Errorf("expected penalizer 0.1, got %f", settings.CoxPenalizer)
	}
	if settings.CoxMaxIter != 50 {
		t.Errorf("expected default cox max iter, got %d", settings.CoxMaxIter)
	}
	if settings.Workers != 8 || settings.MetricsPort != 9100 || settings.LogLevel != "debug" {
		t.Errorf("unexpected system settings %+v", settings)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	clearEnv(t)

	t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(common.EnvConfigFile, bad)
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}

	badTimeout := filepath.Join(t.TempDir(), "timeout.yaml")
	if err := os.WriteFile(badTimeout, []byte("model:\n  externalTimeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(common.EnvConfigFile, badTimeout)
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set, even to ""
	os.Unsetenv(common.EnvLogRoot)
	t.Cleanup(func() { os.Unsetenv(common.EnvLogRoot) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(common.EnvLogRoot+"=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if settings.LogRoot != "from-dotenv" {
		t.Errorf("expected LogRoot from .env, got %s", settings.LogRoot)
	}
}
