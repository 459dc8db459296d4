package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"tomato/internal/types"
)

func TestUnifiedDiff(t *testing.T) {
	original := "line one\nline two\nline three\n"
	final := "line one\nline 2\nline three\n"

	diff := Unified("app.py", original, final)

	if !strings.Contains(diff, "--- a/app.py") || !strings.Contains(diff, "+++ b/app.py") {
		t.Errorf("missing file header:\n%s", diff)
	}
	if !strings.Contains(diff, "-line two") {
		t.Errorf("missing removal:\n%s", diff)
	}
	if !strings.Contains(diff, "+line 2") {
		t.Errorf("missing addition:\n%s", diff)
	}
	if !strings.Contains(diff, " line one") {
		t.Errorf("missing context line:\n%s", diff)
	}
}

func TestUnifiedDiffIdenticalContent(t *testing.T) {
	if diff := Unified("a.py", "same\n", "same\n"); diff != "" {
		t.Errorf("identical content should yield empty diff, got:\n%s", diff)
	}
}

func TestUnifiedDiffSeparateHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 30; i++ {
		line := strings.Repeat("x", 3)
		oldLines = append(oldLines, line)
		newLines = append(newLines, line)
	}
	oldLines[0] = "first old"
	newLines[0] = "first new"
	oldLines[29] = "last old"
	newLines[29] = "last new"

	diff := Unified("a.py", strings.Join(oldLines, "\n")+"\n", strings.Join(newLines, "\n")+"\n")

	if got := strings.Count(diff, "@@"); got != 4 {
		t.Errorf("changes far apart should produce 2 hunks (4 @@ markers), got %d:\n%s", got, diff)
	}
}

func sampleSession() *types.FileSession {
	started := time.Now().Add(-3 * time.Second)
	return &types.FileSession{
		ID:       "0123456789abcdef",
		Path:     "pkg/app.py",
		Original: "BUG = 1\n",
		Current:  "OK = 1\n",
		History: []types.IterationRecord{
			{
				Index: 0,
				Findings: []types.Finding{
					{Line: 1, Rule: "E501", Severity: types.SeverityError, Message: "line | too long"},
				},
				Guidance: []types.GuidanceRecord{{
					FindingKey: "E501|line | too long",
					Passages:   []types.GuidancePassage{{Text: "p", Score: 0.9, Source: "pep8.md"}},
				}},
				Outcome:   types.OutcomePassed,
				Committed: true,
			},
			{Index: 1},
		},
		Iterations: 1,
		Status:     types.StatusConverged,
		Reason:     types.ReasonClean,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

func TestRenderFileReport(t *testing.T) {
	body := RenderFileReport(sampleSession())

	for _, want := range []string{
		"# Review: pkg/app.py",
		"converged",
		"## Iteration 0",
		"E501",
		"pep8.md",
		"Candidate verified and committed.",
		"No findings.",
		"```diff",
		"-BUG = 1",
		"+OK = 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q:\n%s", want, body)
		}
	}

	// Pipes in messages must not break the markdown table.
	if !strings.Contains(body, `line \| too long`) {
		t.Error("table cell not escaped")
	}
}

func TestMarkdownReporterWritesFile(t *testing.T) {
	reporter, err := NewMarkdownReporter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := reporter.WriteFileReport(sampleSession())
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# Review: pkg/app.py") {
		t.Errorf("written report truncated: %q", data)
	}
	if !strings.HasSuffix(path, "app-01234567.md") {
		t.Errorf("unexpected report name: %s", path)
	}
}

func TestRenderBatchSummary(t *testing.T) {
	batch := &types.BatchReport{
		Files: []types.FileReport{
			{Path: "a.py", Status: types.StatusConverged, Reason: types.ReasonClean, Iterations: 1, Modified: true},
			{Path: "b.py", Status: types.StatusExhausted, Reason: types.ReasonNoProgress, Iterations: 4, Remaining: 2},
			{Path: "c.py", Status: types.StatusFailed, Reason: types.ReasonFatal, Err: "read error"},
		},
		Converged:  1,
		Exhausted:  1,
		Failed:     1,
		Duration:   2 * time.Second,
		ReportOnly: true,
	}

	body := RenderBatchSummary(batch)

	for _, want := range []string{"report-only", "a.py", "no-progress", "## Errors", "read error"} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q:\n%s", want, body)
		}
	}
}
