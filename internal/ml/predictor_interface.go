// Package ml scores solver trajectories with fitted survival models.
//
// A model family (Cox proportional hazards, or an external ensemble trainer)
// is only ever used through the RiskModel and Family capabilities. Fitted
// models travel as an Artifact: the model state, the ordered feature schema
// it was fitted on, and the decision threshold chosen at training time.
package ml

import (
	"context"
	"encoding/json"
	"errors"

	"trajrisk/internal/dataset"
)

var (
	// ErrModelLoad is returned when a model artifact is missing or corrupt.
	ErrModelLoad = errors.New("model load failed")
	// ErrSchema is returned when a feature schema or feature record is unusable.
	ErrSchema = errors.New("feature schema error")
	// ErrFit is returned when a model family cannot fit the training data.
	ErrFit = errors.New("model fit failed")
)

// RiskModel scores feature rows. Higher scores mean higher risk of early
// termination; the family's native convention is preserved.
type RiskModel interface {
	// Family returns the name of the family that produced the model.
	Family() string

	// Score returns one risk value per row of X. X columns are already
	// aligned to the model's schema.
	Score(ctx context.Context, X *dataset.Table) ([]float64, error)

	// State returns the serialized model state stored in the artifact.
	State() (json.RawMessage, error)
}

// Family fits risk models and restores them from artifact state.
type Family interface {
	Name() string
	Fit(ctx context.Context, X *dataset.Table, y []dataset.Outcome) (RiskModel, error)
	Decode(state json.RawMessage) (RiskModel, error)
}
