// Package runlog reads the per-solution JSON logs written by the solver.
//
// The log root holds one directory per solver run; each run directory holds
// sol-*.json files, one per solution trajectory.
package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

// SolutionGlob matches solution files inside a run directory.
const SolutionGlob = "sol-*.json"

var (
	// ErrNoData is returned when the log root is missing or holds no records.
	ErrNoData = errors.New("no run logs found")
	// ErrMalformedRecord is returned when a solution file cannot be decoded
	// or misses a required field.
	ErrMalformedRecord = errors.New("malformed run record")
)

// Record is one solution trajectory together with its survival outcome.
type Record struct {
	RunFolder      string         `json:"run_folder"`
	SolutionFile   string         `json:"solution_file"`
	InstanceIndex  int            `json:"instance_index"`
	BirthIter      int            `json:"birth_iter"`
	DeathIter      int            `json:"death_iter"`
	SurvivalTime   int            `json:"survival_time"`
	Censored       bool           `json:"censored"`
	PreVNDCost     float64        `json:"pre_vnd_cost"`
	PostVNDCost    float64        `json:"post_vnd_cost"`
	Coords         orb.LineString `json:"coords"`
	PostVNDFitness *float64       `json:"post_vnd_fitness,omitempty"`
	FinalFitness   *float64       `json:"final_fitness,omitempty"`
}

// solutionFile mirrors the on-disk layout. Pointers distinguish a missing
// field from a zero value.
type solutionFile struct {
	InstanceIndex  *int         `json:"instance_index"`
	BirthIter      *int         `json:"birth_iter"`
	DeathIter      *int         `json:"death_iter"`
	SurvivalIters  *int         `json:"survival_iters"`
	Censored       *bool        `json:"censored"`
	PreVNDCost     *float64     `json:"pre_vnd_cost"`
	PostVNDCost    *float64     `json:"post_vnd_cost"`
	PreVNDCoords   *[][]float64 `json:"pre_vnd_coords"`
	PostVNDFitness *float64     `json:"post_vnd_fitness"`
	FinalFitness   *float64     `json:"final_fitness"`
}

func (f *solutionFile) missing() []string {
	var names []string
	if f.InstanceIndex == nil {
		names = append(names, "instance_index")
	}
	if f.BirthIter == nil {
		names = append(names, "birth_iter")
	}
	if f.DeathIter == nil {
		names = append(names, "death_iter")
	}
	if f.SurvivalIters == nil {
		names = append(names, "survival_iters")
	}
	if f.Censored == nil {
		names = append(names, "censored")
	}
	if f.PreVNDCost == nil {
		names = append(names, "pre_vnd_cost")
	}
	if f.PostVNDCost == nil {
		names = append(names, "post_vnd_cost")
	}
	if f.PreVNDCoords == nil {
		names = append(names, "pre_vnd_coords")
	}
	return names
}

// Loader collects records from a log root.
type Loader struct {
	root    string
	records []Record
}

// NewLoader creates a loader for the given log root.
func NewLoader(root string) *Loader {
	return &Loader{
		root:    root,
		records: make([]Record, 0),
	}
}

// LoadAll reads every run directory under the log root in lexical order.
// A missing root, or a root without any solution file, yields ErrNoData.
func LoadAll(root string) ([]Record, error) {
	l := NewLoader(root)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l.Records(), nil
}

// Load reads every run directory under the loader's root.
func (l *Loader) Load() error {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("%w: folder %s: %v", ErrNoData, l.root, err)
	}

	// os.ReadDir returns entries sorted by filename
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rows, err := LoadRunDir(filepath.Join(l.root, entry.Name()))
		if err != nil {
			return err
		}
		l.records = append(l.records, rows...)
	}

	if len(l.records) == 0 {
		return fmt.Errorf("%w: folder %s", ErrNoData, l.root)
	}

	log.Info().
		Str("log_root", l.root).
		Int("total_records", len(l.records)).
		Msg("Run logs loaded")

	return nil
}

// Records returns the loaded records in load order.
func (l *Loader) Records() []Record {
	return l.records
}

// Count returns the number of loaded records.
func (l *Loader) Count() int {
	return len(l.records)
}

// LoadRunDir reads all solution files of one run directory, sorted by name.
func LoadRunDir(runDir string) ([]Record, error) {
	files, err := filepath.Glob(filepath.Join(runDir, SolutionGlob))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", runDir, err)
	}
	sort.Strings(files)

	rows := make([]Record, 0, len(files))
	for _, file := range files {
		rec, err := LoadRecord(file)
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}

	log.Debug().
		Str("run_dir", runDir).
		Int("records", len(rows)).
		Msg("Run directory loaded")

	return rows, nil
}

// LoadRecord reads a single solution file.
func LoadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DecodeRecord(data, filepath.Base(filepath.Dir(path)), filepath.Base(path))
}

// DecodeRecord decodes a solution file body. runFolder and fileName are
// carried into the record for provenance only.
func DecodeRecord(data []byte, runFolder, fileName string) (Record, error) {
	var raw solutionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %s/%s: %v", ErrMalformedRecord, runFolder, fileName, err)
	}
	if missing := raw.missing(); len(missing) > 0 {
		return Record{}, fmt.Errorf("%w: %s/%s: missing %v", ErrMalformedRecord, runFolder, fileName, missing)
	}
	if *raw.SurvivalIters < 0 {
		return Record{}, fmt.Errorf("%w: %s/%s: negative survival_iters %d", ErrMalformedRecord, runFolder, fileName, *raw.SurvivalIters)
	}
	coords, err := toLineString(*raw.PreVNDCoords)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s/%s: pre_vnd_coords: %v", ErrMalformedRecord, runFolder, fileName, err)
	}

	return Record{
		RunFolder:      runFolder,
		SolutionFile:   fileName,
		InstanceIndex:  *raw.InstanceIndex,
		BirthIter:      *raw.BirthIter,
		DeathIter:      *raw.DeathIter,
		SurvivalTime:   *raw.SurvivalIters,
		Censored:       *raw.Censored,
		PreVNDCost:     *raw.PreVNDCost,
		PostVNDCost:    *raw.PostVNDCost,
		Coords:         coords,
		PostVNDFitness: raw.PostVNDFitness,
		FinalFitness:   raw.FinalFitness,
	}, nil
}

// toLineString requires every point to have exactly two coordinates.
func toLineString(points [][]float64) (orb.LineString, error) {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		if len(p) != 2 {
			return nil, fmt.Errorf("point %d has %d coordinates, want 2", i, len(p))
		}
		ls[i] = orb.Point{p[0], p[1]}
	}
	return ls, nil
}
