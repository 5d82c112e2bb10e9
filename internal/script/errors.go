package script

import "fmt"

// RunError reports an external script that started but exited non-zero.
type RunError struct {
	Label    string
	ExitCode int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("script %s exited with code %d", e.Label, e.ExitCode)
}

// SpawnError reports a script that could not be started at all (missing
// executable, permission problem). Callers always handle it; it must never
// surface as an unexplained process failure.
type SpawnError struct {
	Label string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("script %s failed to start: %v", e.Label, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
