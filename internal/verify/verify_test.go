package verify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tomato/internal/types"
)

func TestProcessRunnerSkipsUnknownExtension(t *testing.T) {
	r := NewProcessRunner(map[string][]string{".py": {"python3", "{file}"}})

	result := r.Run(context.Background(), "notes.txt", "hello", time.Second)
	if result.Status != RunSkipped {
		t.Errorf("expected skip for unmapped extension, got %v", result.Status)
	}
}

func TestProcessRunnerSuccess(t *testing.T) {
	r := NewProcessRunner(map[string][]string{".py": {"true", "{file}"}})

	result := r.Run(context.Background(), "app.py", "x = 1\n", 5*time.Second)
	if result.Status != RunSuccess {
		t.Errorf("expected success, got %v (%s)", result.Status, result.Output)
	}
}

func TestProcessRunnerFailure(t *testing.T) {
	r := NewProcessRunner(map[string][]string{".py": {"false", "{file}"}})

	result := r.Run(context.Background(), "app.py", "x = 1\n", 5*time.Second)
	if result.Status != RunFailure {
		t.Errorf("expected failure for non-zero exit, got %v", result.Status)
	}
}

func TestProcessRunnerTimeout(t *testing.T) {
	r := NewProcessRunner(map[string][]string{".py": {"sleep", "5"}})

	result := r.Run(context.Background(), "app.py", "x = 1\n", 100*time.Millisecond)
	if result.Status != RunTimeout {
		t.Errorf("expected timeout, got %v", result.Status)
	}
}

func TestProcessRunnerMissingBinary(t *testing.T) {
	r := NewProcessRunner(map[string][]string{".py": {"definitely-not-installed-anywhere", "{file}"}})

	result := r.Run(context.Background(), "app.py", "x = 1\n", time.Second)
	if result.Status != RunError {
		t.Errorf("a missing binary is an infrastructure error, got %v", result.Status)
	}
}

// deltaAnalyzer returns fixed findings per content string.
type deltaAnalyzer struct {
	byContent map[string][]types.Finding
	err       error
}

func (d *deltaAnalyzer) Name() string { return "delta" }

func (d *deltaAnalyzer) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	return d.byContent[content], d.err
}

type stubRunner struct{ result RunResult }

func (s *stubRunner) Run(ctx context.Context, path, content string, timeout time.Duration) RunResult {
	return s.result
}

func attemptFor(content string, findings []types.Finding) *types.RepairAttempt {
	return &types.RepairAttempt{
		ID:        "a1",
		Path:      "app.py",
		BaseHash:  types.HashContent("base"),
		Candidate: content,
		Findings:  findings,
	}
}

func TestVerifierPassesWhenFindingsResolve(t *testing.T) {
	base := []types.Finding{{Rule: "E501", Severity: types.SeverityError, Message: "too long"}}
	a := &deltaAnalyzer{byContent: map[string][]types.Finding{"fixed\n": nil}}
	v := NewVerifier(&stubRunner{result: RunResult{Status: RunSkipped}}, a, Options{Exec: true})

	result := v.Verify(context.Background(), attemptFor("fixed\n", base))

	if result.Outcome != types.OutcomePassed {
		t.Fatalf("expected passed, got %s (%s)", result.Outcome, result.Detail)
	}
	if len(result.Delta.Resolved) != 1 {
		t.Errorf("expected the base finding resolved, got %+v", result.Delta)
	}
	if result.ExecRan {
		t.Error("skipped execution must not count as having run")
	}
}

func TestVerifierFailsOnIntroducedError(t *testing.T) {
	base := []types.Finding{{Rule: "W1", Severity: types.SeverityWarning, Message: "warn"}}
	a := &deltaAnalyzer{byContent: map[string][]types.Finding{
		"candidate\n": {{Rule: "E999", Severity: types.SeverityError, Message: "syntax error"}},
	}}
	v := NewVerifier(&stubRunner{result: RunResult{Status: RunSkipped}}, a, Options{Exec: true})

	result := v.Verify(context.Background(), attemptFor("candidate\n", base))
	if result.Outcome != types.OutcomeFailed {
		t.Fatalf("a new error-severity finding must fail verification, got %s", result.Outcome)
	}
}

func TestVerifierToleratesIntroducedWarnings(t *testing.T) {
	base := []types.Finding{{Rule: "E501", Severity: types.SeverityError, Message: "too long"}}
	a := &deltaAnalyzer{byContent: map[string][]types.Finding{
		"candidate\n": {{Rule: "C0301", Severity: types.SeverityInfo, Message: "style nit"}},
	}}
	v := NewVerifier(&stubRunner{result: RunResult{Status: RunSkipped}}, a, Options{Exec: true})

	result := v.Verify(context.Background(), attemptFor("candidate\n", base))
	if result.Outcome != types.OutcomePassed {
		t.Errorf("non-error findings must not block a commit, got %s", result.Outcome)
	}
}

func TestVerifierExecutionFailureShortCircuits(t *testing.T) {
	a := &deltaAnalyzer{err: fmt.Errorf("should not be called")}
	v := NewVerifier(&stubRunner{result: RunResult{Status: RunFailure, Output: "Traceback"}}, a, Options{Exec: true})

	result := v.Verify(context.Background(), attemptFor("candidate\n", nil))
	if result.Outcome != types.OutcomeFailed {
		t.Fatalf("execution failure must fail the attempt, got %s", result.Outcome)
	}
}

func TestVerifierTimeoutOutcome(t *testing.T) {
	a := &deltaAnalyzer{}
	v := NewVerifier(&stubRunner{result: RunResult{Status: RunTimeout}}, a, Options{Exec: true})

	result := v.Verify(context.Background(), attemptFor("candidate\n", nil))
	if result.Outcome != types.OutcomeTimedOut {
		t.Errorf("expected timed-out, got %s", result.Outcome)
	}
}

func TestVerifierExecDisabled(t *testing.T) {
	// Runner would fail, but exec is off: only the delta matters.
	a := &deltaAnalyzer{byContent: map[string][]types.Finding{"candidate\n": nil}}
	v := NewVerifier(&stubRunner{result: RunResult{Status: RunFailure}}, a, Options{Exec: false})

	result := v.Verify(context.Background(), attemptFor("candidate\n", nil))
	if result.Outcome != types.OutcomePassed {
		t.Errorf("exec disabled must verify by delta alone, got %s", result.Outcome)
	}
}
