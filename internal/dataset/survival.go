package dataset

import (
	"fmt"
)

// Outcome is the survival target of one row.
type Outcome struct {
	Time  float64
	Event bool
}

// TargetColumns are the survival targets after PrepareSurvival.
var TargetColumns = []string{ColSurvivalTime, ColEventObserved}

// PrepareSurvival converts a built table into survival format: it adds
// event_observed (1 when the trajectory truly died) and drops the censored
// flag and the instance index, which carries no signal across instances.
func PrepareSurvival(t *Table) (*Table, error) {
	c := t.Index(ColCensored)
	if c < 0 {
		return nil, fmt.Errorf("column %q not found", ColCensored)
	}
	if t.Index(ColSurvivalTime) < 0 {
		return nil, fmt.Errorf("column %q not found", ColSurvivalTime)
	}

	out := t.Clone()
	out.Columns = append(out.Columns, ColEventObserved)
	for i, row := range out.Rows {
		out.Rows[i] = append(row, 1-row[c])
	}
	return out.Drop(ColCensored, ColInstanceIndex), nil
}

// SplitSurvival separates the feature matrix from the survival targets.
func SplitSurvival(t *Table) (*Table, []Outcome, error) {
	times, err := t.Column(ColSurvivalTime)
	if err != nil {
		return nil, nil, err
	}
	events, err := t.Column(ColEventObserved)
	if err != nil {
		return nil, nil, err
	}

	y := make([]Outcome, len(times))
	for i := range times {
		y[i] = Outcome{Time: times[i], Event: events[i] != 0}
	}
	return t.Drop(TargetColumns...), y, nil
}
