package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"trajrisk/internal/dataset"
)

// FeatureRecord is one stored feature row.
type FeatureRecord struct {
	Run    string             `json:"run"`
	Index  int                `json:"index"`
	Values map[string]float64 `json:"values"`
}

// RunSummary describes the rows stored for a run folder.
type RunSummary struct {
	Run      string    `json:"run"`
	Rows     int       `json:"rows"`
	Columns  []string  `json:"columns"`
	StoredAt time.Time `json:"stored_at"`
}

func rowKey(run string, index int) []byte {
	return []byte(fmt.Sprintf("%s_%08d", run, index))
}

// StoreRows replaces the stored rows of run with the rows of t.
func (s *Store) StoreRows(run string, t *dataset.Table) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(featuresBucket))
		if err := deleteRun(b, run); err != nil {
			return err
		}

		for i := range t.Rows {
			data, err := json.Marshal(FeatureRecord{Run: run, Index: i, Values: t.Row(i)})
			if err != nil {
				return fmt.Errorf("marshal feature record: %w", err)
			}
			if err := b.Put(rowKey(run, i), data); err != nil {
				return err
			}
		}

		summary, err := json.Marshal(RunSummary{
			Run:      run,
			Rows:     t.Len(),
			Columns:  t.Columns,
			StoredAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal run summary: %w", err)
		}
		return tx.Bucket([]byte(runsBucket)).Put([]byte(run), summary)
	})
}

// deleteRun removes every row key of run. Keys of other runs sharing the
// prefix are recognized by their stored run name and kept.
func deleteRun(b *bbolt.Bucket, run string) error {
	var stale [][]byte
	c := b.Cursor()
	prefix := []byte(run + "_")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var rec FeatureRecord
		if err := json.Unmarshal(v, &rec); err == nil && rec.Run != run {
			continue
		}
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// LoadRows returns the stored rows of run in build order.
func (s *Store) LoadRows(run string) ([]FeatureRecord, error) {
	var records []FeatureRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(featuresBucket)).Cursor()
		prefix := []byte(run + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec FeatureRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode feature record %s: %w", k, err)
			}
			if rec.Run != run {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// LoadTable rebuilds the table of run using the stored column order.
func (s *Store) LoadTable(run string) (*dataset.Table, error) {
	summary, err := s.Run(run)
	if err != nil {
		return nil, err
	}
	records, err := s.LoadRows(run)
	if err != nil {
		return nil, err
	}

	t := dataset.NewTable(summary.Columns)
	for _, rec := range records {
		values := make([]float64, len(summary.Columns))
		for j, name := range summary.Columns {
			values[j] = rec.Values[name]
		}
		if err := t.Append(values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Run returns the summary of a stored run.
func (s *Store) Run(run string) (RunSummary, error) {
	var summary RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(run))
		if data == nil {
			return fmt.Errorf("run %q not stored", run)
		}
		return json.Unmarshal(data, &summary)
	})
	return summary, err
}

// Runs lists stored runs in key order.
func (s *Store) Runs() ([]RunSummary, error) {
	var runs []RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var summary RunSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				return err
			}
			runs = append(runs, summary)
			return nil
		})
	})
	return runs, err
}
