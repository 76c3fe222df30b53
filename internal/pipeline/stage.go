package pipeline

import "fmt"

// Stage is a step of the run state machine. A run moves through the
// stages in order; each segment moves through the last three on its own.
type Stage int

const (
	Loaded Stage = iota + 1
	GapDetected
	Segmented
	Resampled
	Merged
	Persisted
)

var stageNames = map[Stage]string{
	Loaded:      "Loaded",
	GapDetected: "GapDetected",
	Segmented:   "Segmented",
	Resampled:   "Resampled",
	Merged:      "Merged",
	Persisted:   "Persisted",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// stageError records the stage a segment was trying to reach when it
// failed.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error { return e.err }

func failAt(stage Stage, err error) error {
	return &stageError{stage: stage, err: err}
}
