package ml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

// trainVersion writes an artifact with the given threshold into the active
// slot and registers it.
func trainVersion(t *testing.T, mm *ModelManager, dir string, threshold float64) ModelVersion {
	t.Helper()
	a := linearArtifact()
	a.Meta.Threshold = threshold
	require.NoError(t, SaveArtifact(dir, a))

	v, err := mm.AddVersion(FamilyCox, ModelMetrics{Threshold: threshold, TrainingSamples: 10})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion(v.Version))
	return v
}

func TestModelManager_AddActivateRollback(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	mm.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	first := trainVersion(t, mm, dir, 1)
	second := trainVersion(t, mm, dir, 2)

	versions := mm.ListVersions()
	require.Len(t, versions, 2)
	assert.Equal(t, second.Version, versions[0].Version, "newest first")
	assert.Equal(t, second.Version, mm.GetCurrentVersion(FamilyCox).Version)

	prev, err := mm.Rollback(FamilyCox)
	require.NoError(t, err)
	assert.Equal(t, first.Version, prev.Version)

	// the active slot now holds the first artifact again
	a, err := LoadArtifact(dir, FamilyCox)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Meta.Threshold)

	_, err = mm.Rollback(FamilyCox)
	assert.Error(t, err)
}

func TestModelManager_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	v := trainVersion(t, mm, dir, 1.5)

	reopened, err := NewModelManager(dir)
	require.NoError(t, err)
	current := reopened.GetCurrentVersion(FamilyCox)
	require.NotNil(t, current)
	assert.Equal(t, v.Version, current.Version)
	assert.Equal(t, 1.5, current.Metrics.Threshold)
}

func TestModelManager_UniqueVersionIDs(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	stopped := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mm.now = func() time.Time { return stopped }

	a := trainVersion(t, mm, dir, 1)
	b := trainVersion(t, mm, dir, 2)
	assert.NotEqual(t, a.Version, b.Version)
}

func TestModelManager_Errors(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)

	assert.Error(t, mm.ActivateVersion("missing"))
	_, err = mm.Rollback(FamilyCox)
	assert.Error(t, err)
	assert.Nil(t, mm.GetCurrentVersion(FamilyCox))

	// nothing trained yet
	_, err = mm.AddVersion(FamilyCox, ModelMetrics{})
	assert.Error(t, err)
}
