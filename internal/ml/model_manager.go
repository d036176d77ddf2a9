package ml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

const versionsFileName = "model_versions.json"

// ModelVersion represents a registered model artifact
type ModelVersion struct {
	Version   string       `json:"version"`
	Family    string       `json:"family"`
	ModelPath string       `json:"model_path"`
	MetaPath  string       `json:"meta_path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains training metrics for a model
type ModelMetrics struct {
	Concordance     float64 `json:"concordance"`
	Threshold       float64 `json:"threshold"`
	Quantile        float64 `json:"quantile"`
	TrainingSamples int     `json:"training_samples"`
}

// ModelManager keeps snapshots of trained artifacts and decides which one
// sits in the active <family>_model.json slot.
type ModelManager struct {
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	now          func() time.Time
}

// NewModelManager creates a new model manager
func NewModelManager(modelsDir string) (*ModelManager, error) {
	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, versionsFileName),
		versions:     make([]ModelVersion, 0),
		now:          time.Now,
	}

	if err := mm.loadVersions(); err != nil {
		return nil, fmt.Errorf("failed to load model versions: %w", err)
	}

	return mm, nil
}

// AddVersion snapshots the active artifact of family and registers it.
// The new version is not activated.
func (mm *ModelManager) AddVersion(family string, metrics ModelMetrics) (ModelVersion, error) {
	created := mm.now()
	id := mm.uniqueID(family + "-" + created.Format("20060102-150405"))

	dir := filepath.Join(mm.modelsDir, "versions", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ModelVersion{}, fmt.Errorf("failed to create version directory: %w", err)
	}

	version := ModelVersion{
		Version:   id,
		Family:    family,
		ModelPath: ModelPath(dir, family),
		MetaPath:  MetaPath(dir, family),
		CreatedAt: created,
		Metrics:   metrics,
	}
	if err := copyFile(ModelPath(mm.modelsDir, family), version.ModelPath); err != nil {
		return ModelVersion{}, err
	}
	if err := copyFile(MetaPath(mm.modelsDir, family), version.MetaPath); err != nil {
		return ModelVersion{}, err
	}

	mm.versions = append(mm.versions, version)
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})

	log.Info().Str("version", id).Str("family", family).Msg("Model version registered")
	return version, mm.saveVersions()
}

// ActivateVersion copies a version's snapshot into the active slot of its
// family and marks it active.
func (mm *ModelManager) ActivateVersion(id string) error {
	idx := mm.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("version %s not found", id)
	}
	target := mm.versions[idx]

	if err := copyFile(target.ModelPath, ModelPath(mm.modelsDir, target.Family)); err != nil {
		return err
	}
	if err := copyFile(target.MetaPath, MetaPath(mm.modelsDir, target.Family)); err != nil {
		return err
	}

	for i := range mm.versions {
		if mm.versions[i].Family == target.Family {
			mm.versions[i].IsActive = i == idx
		}
	}

	log.Info().Str("version", id).Str("family", target.Family).Msg("Model version activated")
	return mm.saveVersions()
}

// Rollback activates the version of family registered before the active one.
func (mm *ModelManager) Rollback(family string) (ModelVersion, error) {
	current := -1
	for i, v := range mm.versions {
		if v.Family == family && v.IsActive {
			current = i
			break
		}
	}
	if current == -1 {
		return ModelVersion{}, fmt.Errorf("no active %s version found", family)
	}

	for i := current + 1; i < len(mm.versions); i++ {
		if mm.versions[i].Family == family {
			if err := mm.ActivateVersion(mm.versions[i].Version); err != nil {
				return ModelVersion{}, err
			}
			return mm.versions[i], nil
		}
	}

	return ModelVersion{}, fmt.Errorf("no previous %s version available for rollback", family)
}

// GetCurrentVersion returns the active version of family, or nil.
func (mm *ModelManager) GetCurrentVersion(family string) *ModelVersion {
	for i := range mm.versions {
		if mm.versions[i].Family == family && mm.versions[i].IsActive {
			v := mm.versions[i]
			return &v
		}
	}
	return nil
}

// ListVersions returns all versions, newest first.
func (mm *ModelManager) ListVersions() []ModelVersion {
	out := make([]ModelVersion, len(mm.versions))
	copy(out, mm.versions)
	return out
}

func (mm *ModelManager) indexOf(id string) int {
	for i := range mm.versions {
		if mm.versions[i].Version == id {
			return i
		}
	}
	return -1
}

func (mm *ModelManager) uniqueID(base string) string {
	id := base
	for n := 2; mm.indexOf(id) >= 0; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, &mm.versions)
}

func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(mm.versionsFile, data, 0o600)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
