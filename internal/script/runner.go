// Package script runs the external build scripts and streams their output
// to the process log, tagged with a per-invocation label.
package script

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/arc-components/arcci/internal/logfields"
)

// Runner spawns exactly one external process per Run call.
type Runner struct {
	dir     string        // working directory for spawned processes
	timeout time.Duration // 0 = no per-invocation timeout
}

// NewRunner creates a runner. dir may be empty to inherit the process
// working directory. A non-zero timeout bounds each invocation; a hung
// external process otherwise blocks its pipeline indefinitely.
func NewRunner(dir string, timeout time.Duration) *Runner {
	return &Runner{dir: dir, timeout: timeout}
}

// Run spawns command with args, streams stdout/stderr lines to slog tagged
// with label, and returns the exit code. A non-zero exit yields *RunError;
// a process that could not start yields *SpawnError.
func (r *Runner) Run(ctx context.Context, command string, args []string, label string) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, &SpawnError{Label: label, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, &SpawnError{Label: label, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return -1, &SpawnError{Label: label, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, label, slog.LevelInfo)
	go streamLines(&wg, stderr, label, slog.LevelWarn)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			slog.Warn("Script finished with non-zero code",
				logfields.Label(label), logfields.ExitCode(code))
			return code, &RunError{Label: label, ExitCode: code}
		}
		if ctx.Err() != nil {
			return -1, &RunError{Label: label, ExitCode: -1}
		}
		return -1, &SpawnError{Label: label, Err: err}
	}

	slog.Debug("Script finished", logfields.Label(label), logfields.ExitCode(0))
	return 0, nil
}

// Output runs command and returns its captured stdout instead of streaming
// it. Used for collaborators whose stdout is the result (docs analysis).
func (r *Runner) Output(ctx context.Context, command string, args []string, label string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.dir

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &RunError{Label: label, ExitCode: exitErr.ExitCode()}
		}
		return nil, &SpawnError{Label: label, Err: err}
	}
	return out, nil
}

func streamLines(wg *sync.WaitGroup, rd io.Reader, label string, level slog.Level) {
	defer wg.Done()
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		slog.Log(context.Background(), level, line, logfields.Label(label))
	}
}
