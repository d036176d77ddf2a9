package runlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSolution = `{
  "instance_index": %d,
  "birth_iter": 3,
  "death_iter": 17,
  "survival_iters": 14,
  "censored": false,
  "pre_vnd_cost": 412.5,
  "post_vnd_cost": 398.25,
  "pre_vnd_coords": [[0, 0], [1, 0], [1, 1]],
  "final_fitness": 390.0
}`

func writeSolution(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadAll_ReadsRunsInOrder(t *testing.T) {
	root := t.TempDir()
	writeSolution(t, filepath.Join(root, "run-b"), "sol-001.json", fmt.Sprintf(validSolution, 3))
	writeSolution(t, filepath.Join(root, "run-a"), "sol-002.json", fmt.Sprintf(validSolution, 2))
	writeSolution(t, filepath.Join(root, "run-a"), "sol-001.json", fmt.Sprintf(validSolution, 1))
	writeSolution(t, filepath.Join(root, "run-a"), "notes.json", `{"ignored": true}`)
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644))

	records, err := LoadAll(root)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []int{1, 2, 3}, []int{records[0].InstanceIndex, records[1].InstanceIndex, records[2].InstanceIndex})
	assert.Equal(t, "run-a", records[0].RunFolder)
	assert.Equal(t, "sol-001.json", records[0].SolutionFile)

	rec := records[0]
	assert.Equal(t, 3, rec.BirthIter)
	assert.Equal(t, 17, rec.DeathIter)
	assert.Equal(t, 14, rec.SurvivalTime)
	assert.False(t, rec.Censored)
	assert.Equal(t, 412.5, rec.PreVNDCost)
	assert.Equal(t, 398.25, rec.PostVNDCost)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 0}, {1, 1}}, rec.Coords)
	assert.Nil(t, rec.PostVNDFitness)
	require.NotNil(t, rec.FinalFitness)
	assert.Equal(t, 390.0, *rec.FinalFitness)
}

func TestLoadAll_NoData(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "does-not-exist")
		_, err := LoadAll(root)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoData))
		assert.Contains(t, err.Error(), root)
	})

	t.Run("empty root", func(t *testing.T) {
		_, err := LoadAll(t.TempDir())
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("run dirs without solutions", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "run-1"), 0o755))
		_, err := LoadAll(root)
		assert.ErrorIs(t, err, ErrNoData)
	})
}

func TestLoadAll_MalformedRecordIsFatal(t *testing.T) {
	root := t.TempDir()
	writeSolution(t, filepath.Join(root, "run-1"), "sol-001.json", fmt.Sprintf(validSolution, 1))
	writeSolution(t, filepath.Join(root, "run-1"), "sol-002.json", `{"instance_index": 2, "birth_iter": 1}`)

	_, err := LoadAll(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.NotErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "sol-002.json")
	assert.Contains(t, err.Error(), "pre_vnd_coords")
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", fmt.Sprintf(validSolution, 9), false},
		{"empty coords are allowed", `{"instance_index":1,"birth_iter":0,"death_iter":0,"survival_iters":0,"censored":true,"pre_vnd_cost":1,"post_vnd_cost":1,"pre_vnd_coords":[]}`, false},
		{"null coords", `{"instance_index":1,"birth_iter":0,"death_iter":0,"survival_iters":0,"censored":true,"pre_vnd_cost":1,"post_vnd_cost":1,"pre_vnd_coords":null}`, true},
		{"negative survival", `{"instance_index":1,"birth_iter":0,"death_iter":0,"survival_iters":-1,"censored":true,"pre_vnd_cost":1,"post_vnd_cost":1,"pre_vnd_coords":[]}`, true},
		{"one-component point", `{"instance_index":1,"birth_iter":0,"death_iter":0,"survival_iters":0,"censored":true,"pre_vnd_cost":1,"post_vnd_cost":1,"pre_vnd_coords":[[1],[2]]}`, true},
		{"three-component point", `{"instance_index":1,"birth_iter":0,"death_iter":0,"survival_iters":0,"censored":true,"pre_vnd_cost":1,"post_vnd_cost":1,"pre_vnd_coords":[[0,0],[1,2,3]]}`, true},
		{"wrong type", `{"instance_index":"one"}`, true},
		{"not json", `sol`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tc.body), "run", "sol-1.json")
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRecord)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecodeRecord_KeepsFileNameAndCoords(t *testing.T) {
	rec, err := DecodeRecord([]byte(fmt.Sprintf(validSolution, 4)), "run-x", "sol-004.json")
	require.NoError(t, err)
	assert.Equal(t, "run-x", rec.RunFolder)
	assert.Equal(t, "sol-004.json", rec.SolutionFile)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 0}, {1, 1}}, rec.Coords)

	_, err = DecodeRecord([]byte(`{"instance_index":1,"birth_iter":0,"death_iter":0,"survival_iters":0,"censored":true,"pre_vnd_cost":1,"post_vnd_cost":1,"pre_vnd_coords":[[1],[2]]}`), "run-x", "sol-bad.json")
	require.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, err.Error(), "sol-bad.json")
	assert.Contains(t, err.Error(), "point 0 has 1 coordinates")
}

func TestLoader_Count(t *testing.T) {
	root := t.TempDir()
	writeSolution(t, filepath.Join(root, "run-1"), "sol-001.json", fmt.Sprintf(validSolution, 1))

	l := NewLoader(root)
	assert.Equal(t, 0, l.Count())
	require.NoError(t, l.Load())
	assert.Equal(t, 1, l.Count())
}
