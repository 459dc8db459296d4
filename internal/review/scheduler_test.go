package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"tomato/internal/analyzer"
	"tomato/internal/types"
	"tomato/internal/verify"
)

// countingAnalyzer tracks concurrent Diagnose calls to observe the
// mini-batch width from inside the pipeline.
type countingAnalyzer struct {
	inFlight int32
	peak     int32
	mu       sync.Mutex
}

func (c *countingAnalyzer) Name() string { return "counting" }

func (c *countingAnalyzer) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	n := atomic.AddInt32(&c.inFlight, 1)
	c.mu.Lock()
	if n > c.peak {
		c.peak = n
	}
	c.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)
	return nil, nil
}

func writeBatchFiles(t *testing.T, n int) (paths []string, workspace string) {
	t.Helper()
	workspace = t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(workspace, fmt.Sprintf("file%d.py", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("content %d\n", i)), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return paths, workspace
}

// The genai SDK starts an opencensus stats worker at package init that never
// exits; it is not ours to stop, so leak checks look past it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestSchedulerBoundsConcurrencyAndPreservesOrder(t *testing.T) {
	paths, workspace := writeBatchFiles(t, 5)

	a := &countingAnalyzer{}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) { return content, nil }}
	c := newTestControllerWith(a, rep)
	s := NewScheduler(c, nil, workspace, 2, false)

	batch := s.Run(context.Background(), paths)

	if len(batch.Files) != 5 {
		t.Fatalf("expected 5 file reports, got %d", len(batch.Files))
	}
	for i, fr := range batch.Files {
		if fr.Path != paths[i] {
			t.Errorf("report %d out of order: got %s, want %s", i, fr.Path, paths[i])
		}
		if fr.Status != types.StatusConverged {
			t.Errorf("%s: expected converged, got %s (%s)", fr.Path, fr.Status, fr.Err)
		}
	}
	if batch.Converged != 5 || batch.Failed != 0 {
		t.Errorf("tallies wrong: %+v", batch)
	}
	if !batch.Ok() {
		t.Error("clean batch must report Ok")
	}

	a.mu.Lock()
	peak := a.peak
	a.mu.Unlock()
	if peak > 2 {
		t.Errorf("concurrency exceeded mini-batch width: peak %d", peak)
	}
}

func TestSchedulerIsolatesPerFileFailures(t *testing.T) {
	paths, workspace := writeBatchFiles(t, 2)
	missing := filepath.Join(workspace, "does-not-exist.py")
	all := []string{paths[0], missing, paths[1]}

	a := &fakeAnalyzer{diagnose: func(string, string) ([]types.Finding, error) { return nil, nil }}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) { return content, nil }}
	c := newTestControllerWith(a, rep)
	s := NewScheduler(c, nil, workspace, 4, false)

	batch := s.Run(context.Background(), all)

	if batch.Files[0].Status != types.StatusConverged || batch.Files[2].Status != types.StatusConverged {
		t.Errorf("healthy files must not be affected by a sibling failure: %+v", batch.Files)
	}
	if batch.Files[1].Status != types.StatusFailed {
		t.Errorf("missing file should fail, got %s", batch.Files[1].Status)
	}
	if batch.Converged != 2 || batch.Failed != 1 {
		t.Errorf("tallies wrong: converged=%d failed=%d", batch.Converged, batch.Failed)
	}
	if batch.Ok() {
		t.Error("batch with a failed file must not report Ok")
	}
}

func TestSchedulerWritesReports(t *testing.T) {
	paths, workspace := writeBatchFiles(t, 1)

	a := &fakeAnalyzer{diagnose: func(string, string) ([]types.Finding, error) { return nil, nil }}
	rep := &fakeRepairer{fn: func(content string, _ []types.Finding) (string, error) { return content, nil }}
	c := newTestControllerWith(a, rep)

	reporter := &stubReporter{dir: t.TempDir()}
	s := NewScheduler(c, reporter, workspace, 1, false)

	batch := s.Run(context.Background(), paths)

	if batch.Files[0].ReportPath == "" {
		t.Error("scheduler should record the report path")
	}
	if reporter.calls != 1 {
		t.Errorf("reporter invoked %d times, want 1", reporter.calls)
	}
}

type stubReporter struct {
	dir   string
	calls int
}

func (r *stubReporter) WriteFileReport(s *types.FileSession) (string, error) {
	r.calls++
	return filepath.Join(r.dir, filepath.Base(s.Path)+".md"), nil
}

// newTestControllerWith builds a controller around any analyzer, for tests
// that supply their own.
func newTestControllerWith(a analyzer.Analyzer, rep *fakeRepairer) *Controller {
	verifier := verify.NewVerifier(verify.NewProcessRunner(nil), a, verify.Options{Exec: false})
	return NewController(a, &fakeRetriever{}, rep, verifier, 10, 3)
}
