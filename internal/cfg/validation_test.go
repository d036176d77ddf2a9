package cfg

import (
	"strings"
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		LogRoot:         "solutions/ml_logs",
		ModelDir:        "ml/models",
		DatasetDir:      "ml/dataset",
		Family:          "cox",
		Quantile:        0.7,
		ExternalTimeout: 30 * time.Second,
		CoxPenalizer:    0,
		CoxMaxIter:      50,
		Workers:         0,
		MetricsPort:     8080,
		LogLevel:        "info",
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	if err := validateSettings(createValidSettings()); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(s *Settings)
		wantErr string
	}{
		{"empty log root", func(s *Settings) { s.LogRoot = "" }, "log root"},
		{"empty model dir", func(s *Settings) { s.ModelDir = "" }, "model directory"},
		{"empty dataset dir", func(s *Settings) { s.DatasetDir = "" }, "dataset directory"},
		{"unknown family", func(s *Settings) { s.Family = "rsf" }, "unknown model family"},
		{"quantile zero", func(s *Settings) { s.Quantile = 0 }, "quantile"},
		{"quantile one", func(s *Settings) { s.Quantile = 1 }, "quantile"},
		{"timeout too short", func(s *Settings) { s.ExternalTimeout = time.Millisecond }, "external timeout"},
		{"timeout too long", func(s *Settings) { s.ExternalTimeout = 2 * time.Hour }, "external timeout"},
		{"negative penalizer", func(s *Settings) { s.CoxPenalizer = -0.1 }, "penalizer"},
		{"zero iterations", func(s *Settings) { s.CoxMaxIter = 0 }, "max iterations"},
		{"negative workers", func(s *Settings) { s.Workers = -1 }, "workers"},
		{"privileged port", func(s *Settings) { s.MetricsPort = 80 }, "metrics port"},
		{"bad log level", func(s *Settings) { s.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.modify(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSettings_ExternalWithCommand(t *testing.T) {
	settings := createValidSettings()
	settings.Family = "external"
	settings.ExternalCommand = []string{"python3", "rsf.py"}

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected external config to pass, got error: %v", err)
	}
}

func TestValidateTraining_ExternalCommand(t *testing.T) {
	settings := createValidSettings()
	settings.Family = "external"

	if err := settings.Validate(); err != nil {
		t.Errorf("Expected external config without command to validate for scoring, got %v", err)
	}
	err := settings.ValidateTraining()
	if err == nil || !strings.Contains(err.Error(), "external family requires") {
		t.Errorf("Expected training validation to require a command, got %v", err)
	}

	settings.ExternalCommand = []string{"python3", "rsf.py"}
	if err := settings.ValidateTraining(); err != nil {
		t.Errorf("Expected external config with command to pass, got %v", err)
	}
}

func TestSettings_ValidateAfterOverride(t *testing.T) {
	settings := createValidSettings()
	settings.Family = "svm"

	err := settings.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown model family") {
		t.Errorf("Expected overridden family to be rejected, got %v", err)
	}
}

func TestValidateSettings_BoundaryValues(t *testing.T) {
	settings := createValidSettings()
	settings.Quantile = 0.999
	settings.MetricsPort = 65535
	settings.Workers = 1024
	settings.ExternalTimeout = 100 * time.Millisecond

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected boundary values to pass, got error: %v", err)
	}
}
