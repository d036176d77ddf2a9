// Package dataset assembles feature tables from run records and prepares
// them for survival-model fitting.
package dataset

import (
	"fmt"
	"slices"
)

// Metadata columns appended to the geometry descriptor of every row.
const (
	ColPreVNDCost    = "pre_vnd_cost"
	ColSurvivalTime  = "survival_time"
	ColCensored      = "censored"
	ColInstanceIndex = "instance_index"
	ColEventObserved = "event_observed"
)

// Row is a single feature record keyed by column name.
type Row map[string]float64

// Table is an ordered collection of rows sharing one column schema.
// Rows[i][j] holds the value of Columns[j] for row i.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// NewTable creates an empty table with the given schema.
func NewTable(columns []string) *Table {
	return &Table{
		Columns: slices.Clone(columns),
		Rows:    make([][]float64, 0),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	return slices.Index(t.Columns, name)
}

// Append adds a row. The row must match the schema width.
func (t *Table) Append(values []float64) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Column returns a copy of one column's values.
func (t *Table) Column(name string) ([]float64, error) {
	j := t.Index(name)
	if j < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out, nil
}

// Row returns row i keyed by column name.
func (t *Table) Row(i int) Row {
	r := make(Row, len(t.Columns))
	for j, name := range t.Columns {
		r[name] = t.Rows[i][j]
	}
	return r
}

// Drop returns a copy of the table without the named columns. Unknown names
// are ignored.
func (t *Table) Drop(names ...string) *Table {
	keep := make([]int, 0, len(t.Columns))
	for j, name := range t.Columns {
		if !slices.Contains(names, name) {
			keep = append(keep, j)
		}
	}
	return t.project(keep)
}

// Select returns a copy of the table holding only the named columns, in the
// given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		j := t.Index(name)
		if j < 0 {
			return nil, fmt.Errorf("column %q not found", name)
		}
		idx[k] = j
	}
	return t.project(idx), nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([][]float64, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	return out
}

func (t *Table) project(idx []int) *Table {
	out := &Table{
		Columns: make([]string, len(idx)),
		Rows:    make([][]float64, len(t.Rows)),
	}
	for k, j := range idx {
		out.Columns[k] = t.Columns[j]
	}
	for i, row := range t.Rows {
		values := make([]float64, len(idx))
		for k, j := range idx {
			values[k] = row[j]
		}
		out.Rows[i] = values
	}
	return out
}
