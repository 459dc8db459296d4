package analyzer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"tomato/internal/logging"
	"tomato/internal/types"
)

// CommandAnalyzer shells out to an external linter and parses its concise
// output. The candidate content is written to a temp file first so the
// linter sees the exact snapshot under review, not whatever is on disk.
type CommandAnalyzer struct {
	name    string
	binary  string
	args    []string
	timeout time.Duration
}

// NewCommandAnalyzer builds an analyzer around a linter binary. Occurrences
// of {file} in args are replaced with the temp file path at run time.
func NewCommandAnalyzer(name, binary string, args []string, timeout time.Duration) *CommandAnalyzer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandAnalyzer{name: name, binary: binary, args: args, timeout: timeout}
}

func (c *CommandAnalyzer) Name() string { return c.name }

// Diagnose writes content to a scratch file, runs the linter against it with
// a bounded timeout, and parses findings from stdout. Linters exit non-zero
// when they find issues, so a non-zero exit with parseable output is not an
// error; an empty output with a failed start is.
func (c *CommandAnalyzer) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	dir, err := os.MkdirTemp("", "tomato-lint-*")
	if err != nil {
		return nil, fmt.Errorf("%s: temp dir: %w", c.name, err)
	}
	defer os.RemoveAll(dir)

	scratch := filepath.Join(dir, filepath.Base(path))
	if err := os.WriteFile(scratch, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("%s: write scratch file: %w", c.name, err)
	}

	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = strings.ReplaceAll(a, "{file}", scratch)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.binary, args...)
	out, runErr := cmd.Output()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s: timed out after %v", c.name, c.timeout)
	}

	findings := ParseConcise(string(out), path, c.name)
	if runErr != nil && len(findings) == 0 && len(out) == 0 {
		// Startup failure (binary missing, bad flags), not lint findings.
		return nil, fmt.Errorf("%s: %w", c.name, runErr)
	}

	logging.Analyzer("%s: %d findings for %s in %v", c.name, len(findings), path, time.Since(start))
	return findings, nil
}
