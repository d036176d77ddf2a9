package ml

import (
	"fmt"
	"time"
)

// Family names.
const (
	FamilyCox      = "cox"
	FamilyExternal = "external"
)

// FamilyOptions configures NewFamily.
type FamilyOptions struct {
	CoxPenalizer    float64
	CoxMaxIter      int
	ExternalCommand []string
	ExternalTimeout time.Duration
	// WorkDir receives files an external trainer needs.
	WorkDir string
}

// NewFamily returns the family registered under name.
func NewFamily(name string, opts FamilyOptions) (Family, error) {
	switch name {
	case FamilyCox:
		return &CoxFamily{Penalizer: opts.CoxPenalizer, MaxIter: opts.CoxMaxIter}, nil
	case FamilyExternal:
		if len(opts.ExternalCommand) == 0 {
			return nil, fmt.Errorf("family %q requires an external command", name)
		}
		return &ExternalFamily{
			Command: opts.ExternalCommand,
			Timeout: opts.ExternalTimeout,
			WorkDir: opts.WorkDir,
		}, nil
	default:
		return nil, fmt.Errorf("unknown model family %q", name)
	}
}

// decoderFor returns a family able to restore state of the given name. Only
// the state is needed, so no fit options are required.
func decoderFor(name string) (Family, error) {
	switch name {
	case FamilyCox:
		return &CoxFamily{}, nil
	case FamilyExternal:
		return &ExternalFamily{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown model family %q", ErrModelLoad, name)
	}
}
