package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// RunStatus is the result of executing a candidate.
type RunStatus int

const (
	RunSuccess RunStatus = iota
	RunFailure           // Process started and exited non-zero or crashed
	RunTimeout
	RunError // Could not execute at all (infra problem)
	RunSkipped
)

// RunResult captures one execution of a candidate file.
type RunResult struct {
	Status   RunStatus
	Output   string
	Duration time.Duration
}

// Runner executes candidate content in isolation.
type Runner interface {
	Run(ctx context.Context, path, content string, timeout time.Duration) RunResult
}

// ProcessRunner writes the candidate into a scratch directory and executes
// it with the entry command configured for its extension. Files with no
// entry command are skipped, leaving verification to the diagnostic delta.
// Scratch artifacts are removed unconditionally.
type ProcessRunner struct {
	// entryCommands maps extensions to argv templates; {file} expands to
	// the scratch path.
	entryCommands map[string][]string
}

// NewProcessRunner builds a runner from the configured entry command map.
func NewProcessRunner(entryCommands map[string][]string) *ProcessRunner {
	return &ProcessRunner{entryCommands: entryCommands}
}

// Run executes the candidate. Stdout/stderr are captured for the
// verification detail; the scratch directory is always cleaned up.
func (r *ProcessRunner) Run(ctx context.Context, path, content string, timeout time.Duration) RunResult {
	tmpl, ok := r.entryCommands[filepath.Ext(path)]
	if !ok || len(tmpl) == 0 {
		return RunResult{Status: RunSkipped}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dir, err := os.MkdirTemp("", "tomato-run-*")
	if err != nil {
		return RunResult{Status: RunError, Output: fmt.Sprintf("temp dir: %v", err)}
	}
	defer os.RemoveAll(dir)

	scratch := filepath.Join(dir, filepath.Base(path))
	if err := os.WriteFile(scratch, []byte(content), 0o644); err != nil {
		return RunResult{Status: RunError, Output: fmt.Sprintf("write scratch: %v", err)}
	}

	argv := make([]string, len(tmpl))
	for i, a := range tmpl {
		argv[i] = strings.ReplaceAll(a, "{file}", scratch)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	result := RunResult{Output: string(out), Duration: elapsed}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Status = RunTimeout
	case runErr == nil:
		result.Status = RunSuccess
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.Status = RunFailure
		} else {
			// Binary missing, permission denied: infrastructure, not the code.
			result.Status = RunError
			result.Output = runErr.Error()
		}
	}
	return result
}
