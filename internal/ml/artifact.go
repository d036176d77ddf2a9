package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Bundle is the on-disk form of a fitted model together with its schema.
type Bundle struct {
	Family   string          `json:"family"`
	Features []string        `json:"features"`
	State    json.RawMessage `json:"state"`
}

// Metadata is stored next to the bundle. Threshold is used verbatim at
// scoring time.
type Metadata struct {
	Threshold   float64   `json:"threshold"`
	Quantile    float64   `json:"quantile"`
	NSamples    int       `json:"n_samples"`
	Family      string    `json:"family,omitempty"`
	Concordance float64   `json:"concordance,omitempty"`
	TrainedAt   time.Time `json:"trained_at"`

	Importance map[string]float64 `json:"importance,omitempty"`
}

// Artifact is a fitted model ready for scoring.
type Artifact struct {
	Model  RiskModel
	Schema []string
	Meta   Metadata
}

// ModelPath returns the bundle path of a family inside dir.
func ModelPath(dir, family string) string {
	return filepath.Join(dir, family+"_model.json")
}

// MetaPath returns the metadata path of a family inside dir.
func MetaPath(dir, family string) string {
	return filepath.Join(dir, family+"_meta.json")
}

// SaveArtifact writes the bundle and metadata of a into dir.
func SaveArtifact(dir string, a *Artifact) error {
	if err := validateSchema(a.Schema); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	state, err := a.Model.State()
	if err != nil {
		return fmt.Errorf("failed to encode model state: %w", err)
	}
	family := a.Model.Family()

	bundle := Bundle{Family: family, Features: a.Schema, State: state}
	if err := writeJSON(ModelPath(dir, family), bundle); err != nil {
		return err
	}

	meta := a.Meta
	meta.Family = family
	return writeJSON(MetaPath(dir, family), meta)
}

// LoadArtifact reads the bundle and metadata of family from dir.
func LoadArtifact(dir, family string) (*Artifact, error) {
	return LoadArtifactFiles(ModelPath(dir, family), MetaPath(dir, family))
}

// LoadArtifactFiles reads a bundle and its metadata from explicit paths.
func LoadArtifactFiles(modelPath, metaPath string) (*Artifact, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, modelPath, err)
	}
	if err := validateSchema(bundle.Features); err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}

	family, err := decoderFor(bundle.Family)
	if err != nil {
		return nil, err
	}
	model, err := family.Decode(bundle.State)
	if err != nil {
		return nil, err
	}

	meta, err := loadMetadata(metaPath)
	if err != nil {
		return nil, err
	}

	return &Artifact{Model: model, Schema: bundle.Features, Meta: meta}, nil
}

func loadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	var probe struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	if probe.Threshold == nil {
		return Metadata{}, fmt.Errorf("%w: %s: missing threshold", ErrModelLoad, path)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	if math.IsNaN(meta.Threshold) || math.IsInf(meta.Threshold, 0) {
		return Metadata{}, fmt.Errorf("%w: %s: threshold is not finite", ErrModelLoad, path)
	}
	return meta, nil
}

func validateSchema(schema []string) error {
	if len(schema) == 0 {
		return fmt.Errorf("%w: empty feature schema", ErrSchema)
	}
	seen := make(map[string]bool, len(schema))
	for _, name := range schema {
		if name == "" {
			return fmt.Errorf("%w: empty column name", ErrSchema)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate column %q", ErrSchema, name)
		}
		seen[name] = true
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o600)
}
