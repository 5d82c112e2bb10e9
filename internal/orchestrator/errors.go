package orchestrator

import "fmt"

// StageError wraps a failure with the pipeline stage it occurred in. Later
// stages do not run once a StageError is raised.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PreconditionError reports that a pipeline could not start because a
// required piece of environment was missing.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}
