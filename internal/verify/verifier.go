// Package verify decides whether a repair attempt is safe to commit. A
// candidate passes only if executing it preserves behavior (when an entry
// point exists and execution is enabled) and re-analysis shows it introduces
// no new error-severity findings.
package verify

import (
	"context"
	"fmt"
	"time"

	"tomato/internal/analyzer"
	"tomato/internal/logging"
	"tomato/internal/types"
)

// Options tunes verification policy.
type Options struct {
	// Exec enables the execution step. When false every file is verified by
	// diagnostic delta alone.
	Exec bool

	// Timeout bounds the execution step.
	Timeout time.Duration
}

// Verifier checks candidates against the behavior and diagnostic contracts.
type Verifier struct {
	runner   Runner
	diagnose analyzer.Analyzer
	opts     Options
}

// NewVerifier wires the runner and the diagnostic source used for delta
// computation. The analyzer must be the same one the controller diagnoses
// with, or the delta is meaningless.
func NewVerifier(runner Runner, diagnose analyzer.Analyzer, opts Options) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Verifier{runner: runner, diagnose: diagnose, opts: opts}
}

// Verify runs the candidate and computes the finding delta against the
// attempt's originating findings. No state outlives the returned result.
func (v *Verifier) Verify(ctx context.Context, attempt *types.RepairAttempt) types.VerificationResult {
	start := time.Now()
	result := types.VerificationResult{AttemptID: attempt.ID}

	if v.opts.Exec {
		run := v.runner.Run(ctx, attempt.Path, attempt.Candidate, v.opts.Timeout)
		switch run.Status {
		case RunSuccess, RunSkipped:
			result.ExecRan = run.Status == RunSuccess
		case RunFailure:
			result.Outcome = types.OutcomeFailed
			result.Detail = fmt.Sprintf("execution failed: %s", firstLines(run.Output, 10))
			result.Duration = time.Since(start)
			logging.VerifyWarn("%s: candidate execution failed", attempt.Path)
			return result
		case RunTimeout:
			result.Outcome = types.OutcomeTimedOut
			result.Detail = fmt.Sprintf("execution exceeded %v", v.opts.Timeout)
			result.Duration = time.Since(start)
			logging.VerifyWarn("%s: candidate execution timed out", attempt.Path)
			return result
		case RunError:
			result.Outcome = types.OutcomeErrored
			result.Detail = run.Output
			result.Duration = time.Since(start)
			logging.VerifyWarn("%s: candidate execution errored: %s", attempt.Path, run.Output)
			return result
		}
	}

	after, err := v.diagnose.Diagnose(ctx, attempt.Path, attempt.Candidate)
	if err != nil {
		result.Outcome = types.OutcomeErrored
		result.Detail = fmt.Sprintf("re-diagnose: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Delta = analyzer.Delta(attempt.Findings, after)
	if result.Delta.IntroducedErrors > 0 {
		result.Outcome = types.OutcomeFailed
		result.Detail = fmt.Sprintf("candidate introduces %d new error-severity findings", result.Delta.IntroducedErrors)
	} else {
		result.Outcome = types.OutcomePassed
	}
	result.Duration = time.Since(start)

	logging.Verify("%s: outcome=%s resolved=%d introduced=%d exec=%v in %v",
		attempt.Path, result.Outcome, len(result.Delta.Resolved), len(result.Delta.Introduced),
		result.ExecRan, result.Duration)
	return result
}

func firstLines(s string, n int) string {
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			count++
			if count >= n {
				return s[:i] + "\n..."
			}
		}
	}
	return s
}
