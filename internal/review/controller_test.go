package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tomato/internal/knowledge"
	"tomato/internal/types"
	"tomato/internal/verify"
)

// fakeAnalyzer maps content to findings deterministically.
type fakeAnalyzer struct {
	diagnose func(path, content string) ([]types.Finding, error)
	calls    int
}

func (f *fakeAnalyzer) Name() string { return "fake" }

func (f *fakeAnalyzer) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	f.calls++
	return f.diagnose(path, content)
}

// fakeRepairer wraps a content transform in the Repairer contract.
type fakeRepairer struct {
	fn           func(content string, findings []types.Finding) (string, error)
	calls        int
	lastGuidance []types.GuidanceRecord
}

func (f *fakeRepairer) Repair(ctx context.Context, path, content string, findings []types.Finding, guidance []types.GuidanceRecord) (*types.RepairAttempt, error) {
	f.calls++
	f.lastGuidance = guidance
	out, err := f.fn(content, findings)
	if err != nil {
		return nil, err
	}
	return &types.RepairAttempt{
		ID:        fmt.Sprintf("attempt-%d", f.calls),
		Path:      path,
		BaseHash:  types.HashContent(content),
		Candidate: out,
		Findings:  findings,
		Guidance:  guidance,
		CreatedAt: time.Now(),
	}, nil
}

type fakeRetriever struct {
	passages []types.GuidancePassage
	err      error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]types.GuidancePassage, error) {
	return f.passages, f.err
}

// errorFindingFor flags content containing the marker with one error-severity
// finding keyed on the marker, not the content, so a real fix resolves it.
func errorFindingFor(marker string) func(path, content string) ([]types.Finding, error) {
	return func(path, content string) ([]types.Finding, error) {
		if strings.Contains(content, marker) {
			return []types.Finding{{
				File: path, Line: 1, Rule: "E100",
				Severity: types.SeverityError, Message: "marker present",
			}}, nil
		}
		return nil, nil
	}
}

func writeTestFile(t *testing.T, content string) (path, workspace string) {
	t.Helper()
	workspace = t.TempDir()
	path = filepath.Join(workspace, "target.py")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, workspace
}

func newTestController(a *fakeAnalyzer, r knowledge.Retriever, rep *fakeRepairer, maxIter int) *Controller {
	verifier := verify.NewVerifier(verify.NewProcessRunner(nil), a, verify.Options{Exec: false})
	return NewController(a, r, rep, verifier, maxIter, 3)
}

func runTestSession(t *testing.T, c *Controller, path, workspace string, reportOnly bool) *types.FileSession {
	t.Helper()
	session, err := NewSession(path, workspace, reportOnly)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	c.RunSession(context.Background(), session)
	return session.State
}

func TestControllerConvergesOnCleanFile(t *testing.T) {
	path, workspace := writeTestFile(t, "print('ok')\n")

	a := &fakeAnalyzer{diagnose: func(path, content string) ([]types.Finding, error) { return nil, nil }}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) { return content, nil }}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusConverged || state.Reason != types.ReasonClean {
		t.Fatalf("expected converged/no-findings, got %s/%s", state.Status, state.Reason)
	}
	if state.Iterations != 0 {
		t.Errorf("clean file should converge without burning budget, got %d iterations", state.Iterations)
	}
	if rep.calls != 0 {
		t.Errorf("repairer should never run on a clean file, ran %d times", rep.calls)
	}
	if state.Modified() {
		t.Error("clean file must not be modified")
	}
}

func TestControllerRepairsAndConverges(t *testing.T) {
	path, workspace := writeTestFile(t, "BUG\n")

	a := &fakeAnalyzer{diagnose: errorFindingFor("BUG")}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) {
		return strings.ReplaceAll(content, "BUG", "ok"), nil
	}}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusConverged {
		t.Fatalf("expected converged, got %s (%s)", state.Status, state.Err)
	}
	if state.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", state.Iterations)
	}
	if !state.History[0].Committed {
		t.Error("passing candidate must be committed")
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != "ok\n" {
		t.Errorf("disk content = %q, want %q", onDisk, "ok\n")
	}

	// Backup must hold the untouched original.
	backup, err := os.ReadFile(state.BackupPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(backup) != "BUG\n" {
		t.Errorf("backup = %q, want original", backup)
	}
}

func TestControllerReportOnlyNeverWrites(t *testing.T) {
	path, workspace := writeTestFile(t, "BUG\n")

	a := &fakeAnalyzer{diagnose: errorFindingFor("BUG")}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) {
		return strings.ReplaceAll(content, "BUG", "ok"), nil
	}}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	state := runTestSession(t, c, path, workspace, true)

	if state.Status != types.StatusConverged {
		t.Fatalf("expected converged, got %s", state.Status)
	}
	if state.Current != "ok\n" {
		t.Errorf("session content = %q, want repaired", state.Current)
	}

	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != "BUG\n" {
		t.Errorf("report-only run modified disk: %q", onDisk)
	}
}

func TestControllerStopsOnNoProgress(t *testing.T) {
	path, workspace := writeTestFile(t, "WARN v0\n")

	// Every content warns; the repairer always emits the same candidate, so
	// the second repair produces a byte-identical result.
	a := &fakeAnalyzer{diagnose: func(path, content string) ([]types.Finding, error) {
		return []types.Finding{{
			File: path, Line: 1, Rule: "W100",
			Severity: types.SeverityWarning, Message: "always warns",
		}}, nil
	}}
	rep := &fakeRepairer{fn: func(string, []types.Finding) (string, error) { return "WARN fixed\n", nil }}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusExhausted || state.Reason != types.ReasonNoProgress {
		t.Fatalf("expected exhausted/no-progress, got %s/%s", state.Status, state.Reason)
	}
	if rep.calls != 2 {
		t.Errorf("no-progress must stop after the second identical candidate, repairer ran %d times", rep.calls)
	}
}

func TestControllerExhaustsIterationBudget(t *testing.T) {
	path, workspace := writeTestFile(t, "original\n")

	// Findings are keyed on content, so every new candidate introduces a new
	// error key and verification always fails.
	a := &fakeAnalyzer{diagnose: func(path, content string) ([]types.Finding, error) {
		return []types.Finding{{
			File: path, Line: 1, Rule: "E999",
			Severity: types.SeverityError, Message: content,
		}}, nil
	}}
	rep := &fakeRepairer{}
	rep.fn = func(string, []types.Finding) (string, error) {
		return fmt.Sprintf("candidate v%d\n", rep.calls), nil
	}
	const budget = 3
	c := newTestController(a, &fakeRetriever{}, rep, budget)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusExhausted || state.Reason != types.ReasonBudget {
		t.Fatalf("expected exhausted/iteration-budget, got %s/%s", state.Status, state.Reason)
	}
	if state.Iterations != budget {
		t.Errorf("iterations = %d, want %d", state.Iterations, budget)
	}
	if state.Modified() {
		t.Error("no candidate passed, session content must equal original")
	}

	onDisk, _ := os.ReadFile(path)
	if string(onDisk) != "original\n" {
		t.Errorf("failed verifications must never reach disk, got %q", onDisk)
	}
}

func TestControllerAbsorbsRetrievalFailure(t *testing.T) {
	path, workspace := writeTestFile(t, "BUG\n")

	a := &fakeAnalyzer{diagnose: errorFindingFor("BUG")}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) {
		return strings.ReplaceAll(content, "BUG", "ok"), nil
	}}
	broken := knowledge.NewWithRetry(&fakeRetriever{err: fmt.Errorf("kb down")})
	c := newTestController(a, broken, rep, 10)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusConverged {
		t.Fatalf("retrieval failure must not fail the session, got %s (%s)", state.Status, state.Err)
	}
	if len(rep.lastGuidance) != 0 {
		t.Errorf("degraded retrieval should yield empty guidance, got %d records", len(rep.lastGuidance))
	}
}

func TestControllerPassesGuidanceToRepairer(t *testing.T) {
	path, workspace := writeTestFile(t, "BUG\n")

	a := &fakeAnalyzer{diagnose: errorFindingFor("BUG")}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) {
		return strings.ReplaceAll(content, "BUG", "ok"), nil
	}}
	retriever := &fakeRetriever{passages: []types.GuidancePassage{
		{Text: "prefer explicit names", Score: 0.9, Source: "pep8.md"},
	}}
	c := newTestController(a, retriever, rep, 10)

	runTestSession(t, c, path, workspace, false)

	if len(rep.lastGuidance) != 1 {
		t.Fatalf("expected 1 guidance record, got %d", len(rep.lastGuidance))
	}
	if rep.lastGuidance[0].Passages[0].Source != "pep8.md" {
		t.Errorf("guidance passage lost in transit: %+v", rep.lastGuidance[0])
	}
}

func TestControllerRepairFailureBurnsIteration(t *testing.T) {
	path, workspace := writeTestFile(t, "BUG\n")

	a := &fakeAnalyzer{diagnose: errorFindingFor("BUG")}
	rep := &fakeRepairer{}
	rep.fn = func(content string, _ []types.Finding) (string, error) {
		if rep.calls == 1 {
			return "", fmt.Errorf("model returned garbage")
		}
		return strings.ReplaceAll(content, "BUG", "ok"), nil
	}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusConverged {
		t.Fatalf("expected converged after retrying next iteration, got %s", state.Status)
	}
	if state.Iterations != 2 {
		t.Errorf("failed repair must burn an iteration: got %d, want 2", state.Iterations)
	}
	if !state.History[0].RepairFailed {
		t.Error("first iteration should record the repair failure")
	}
}

func TestControllerInterruptDuringDiagnoseFails(t *testing.T) {
	path, workspace := writeTestFile(t, "anything\n")

	// Cancellation landing while diagnose is in flight: the empty result must
	// not read as a clean pass.
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeAnalyzer{diagnose: func(string, string) ([]types.Finding, error) {
		cancel()
		return nil, nil
	}}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) { return content, nil }}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	session, err := NewSession(path, workspace, false)
	if err != nil {
		t.Fatal(err)
	}
	c.RunSession(ctx, session)
	state := session.State

	if state.Status != types.StatusFailed {
		t.Fatalf("interrupted session must fail, got %s/%s", state.Status, state.Reason)
	}
	if !strings.Contains(state.Err, "interrupted") {
		t.Errorf("err = %q, want an interrupt error", state.Err)
	}
	if rep.calls != 0 {
		t.Errorf("repairer must not run after an interrupt, ran %d times", rep.calls)
	}
}

func TestControllerDiagnoseErrorIsFatal(t *testing.T) {
	path, workspace := writeTestFile(t, "anything\n")

	a := &fakeAnalyzer{diagnose: func(string, string) ([]types.Finding, error) {
		return nil, fmt.Errorf("analyzer crashed")
	}}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) { return content, nil }}
	c := newTestController(a, &fakeRetriever{}, rep, 10)

	state := runTestSession(t, c, path, workspace, false)

	if state.Status != types.StatusFailed || state.Reason != types.ReasonFatal {
		t.Fatalf("expected failed/fatal-error, got %s/%s", state.Status, state.Reason)
	}
	if state.Err == "" {
		t.Error("fatal sessions must carry the error")
	}
}
