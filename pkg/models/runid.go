package models

import (
	"errors"
	"fmt"
	"time"
)

// RunIDLayout is the date stamp format of a run identifier.
const RunIDLayout = "20060102"

// ErrMalformedRunID is returned when a run identifier is not a YYYYMMDD date.
var ErrMalformedRunID = errors.New("run identifier must be a YYYYMMDD calendar date")

// RunID names one extraction cycle end to end.
type RunID string

// ParseRunID validates s as a concrete calendar date in YYYYMMDD form.
func ParseRunID(s string) (RunID, error) {
	if len(s) != len(RunIDLayout) {
		return "", fmt.Errorf("%w: %q", ErrMalformedRunID, s)
	}
	if _, err := time.Parse(RunIDLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedRunID, s)
	}
	return RunID(s), nil
}

// RunIDFor returns the run identifier of the UTC day containing t.
func RunIDFor(t time.Time) RunID {
	return RunID(t.UTC().Format(RunIDLayout))
}

func (r RunID) String() string { return string(r) }

// FileName is the stage file name for this run.
func (r RunID) FileName() string { return string(r) + ".csv" }
