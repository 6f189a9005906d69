package workflow

import (
	"errors"
	"fmt"
)

// ErrRunCompleted is returned when advancing a run whose terminal phase
// already finished.
var ErrRunCompleted = errors.New("workflow: run already completed")

// PhaseActionFailedError reports a field-fill or element-locate failure
// before the transition step. Immediately fatal for the advance call and
// never auto-retried by this layer. Stable code: phase_action_failed.
type PhaseActionFailedError struct {
	Phase int
	Field string
	Err   error
}

func (e *PhaseActionFailedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("phase %d: action failed on field %q: %v", e.Phase, e.Field, e.Err)
	}
	return fmt.Sprintf("phase %d: action failed: %v", e.Phase, e.Err)
}

func (e *PhaseActionFailedError) Unwrap() error { return e.Err }

// Code returns the stable error code for callers.
func (e *PhaseActionFailedError) Code() string { return "phase_action_failed" }

// PhaseStuckError means the step indicator never moved despite the bounded
// re-fill/re-click retries. Stable code: phase_stuck.
type PhaseStuckError struct {
	Phase    int
	Attempts int
}

func (e *PhaseStuckError) Error() string {
	return fmt.Sprintf("phase %d: stuck after %d transition attempts", e.Phase, e.Attempts)
}

// Code returns the stable error code for callers.
func (e *PhaseStuckError) Code() string { return "phase_stuck" }
