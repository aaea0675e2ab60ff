package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown to the store.
	ErrSessionNotFound = errors.New("pipeline: session not found")

	// ErrSessionExists is returned when creating a session whose ID is
	// already stored.
	ErrSessionExists = errors.New("pipeline: session already exists")

	// ErrSessionTerminal is returned for operations that require a live
	// session (e.g. cancellation) on one that already finished.
	ErrSessionTerminal = errors.New("pipeline: session already terminal")

	// ErrDuplicateOutput is returned when a second output is written for the
	// same stage within a session. A session accepts exactly one successful
	// result per stage.
	ErrDuplicateOutput = errors.New("pipeline: stage output already recorded")
)

// GateError reports that a stage output was returned by the generation
// service but rejected by the quality gate. It is retryable until the
// stage's attempt budget is exhausted.
type GateError struct {
	StageID      string
	Score        int
	MinScore     int
	Deficiencies []string
}

// Error implements the error interface.
func (e *GateError) Error() string {
	return fmt.Sprintf("pipeline: stage %s rejected by quality gate: score %d < %d (%s)",
		e.StageID, e.Score, e.MinScore, strings.Join(e.Deficiencies, "; "))
}

// DependencyError reports that a stage was scheduled before all of its
// declared prior-stage outputs were present in the data-flow context. Given
// the linear stage order this indicates an orchestrator bug, so it is fatal
// and never retried.
type DependencyError struct {
	StageID string
	Missing []string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("pipeline: stage %s missing dependencies: %s",
		e.StageID, strings.Join(e.Missing, ", "))
}
