// Package report renders review outcomes: per-file markdown reports with
// iteration history and a unified diff, plus the batch summary shown at the
// end of a run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tomato/internal/logging"
	"tomato/internal/types"
)

// MarkdownReporter writes one markdown report per reviewed file under the
// configured directory.
type MarkdownReporter struct {
	dir string
}

// NewMarkdownReporter creates the report directory if needed.
func NewMarkdownReporter(dir string) (*MarkdownReporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report dir %s: %w", dir, err)
	}
	return &MarkdownReporter{dir: dir}, nil
}

// WriteFileReport renders the session history and writes it next to earlier
// reports for the same file, disambiguated by session ID.
func (r *MarkdownReporter) WriteFileReport(s *types.FileSession) (string, error) {
	name := strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
	suffix := s.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s.md", name, suffix))

	if err := os.WriteFile(path, []byte(RenderFileReport(s)), 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	logging.Review("%s: report written to %s", s.Path, path)
	return path, nil
}

// RenderFileReport builds the markdown body for one session.
func RenderFileReport(s *types.FileSession) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Review: %s\n\n", s.Path)
	fmt.Fprintf(&sb, "- **Status:** %s", s.Status)
	if s.Reason != "" {
		fmt.Fprintf(&sb, " (%s)", s.Reason)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- **Iterations:** %d\n", s.Iterations)
	fmt.Fprintf(&sb, "- **Modified:** %v\n", s.Modified())
	if s.BackupPath != "" {
		fmt.Fprintf(&sb, "- **Backup:** %s\n", s.BackupPath)
	}
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Elapsed:** %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	if s.Err != "" {
		fmt.Fprintf(&sb, "- **Error:** %s\n", s.Err)
	}
	sb.WriteString("\n")

	for _, it := range s.History {
		fmt.Fprintf(&sb, "## Iteration %d\n\n", it.Index)
		writeIteration(&sb, it)
	}

	if diff := Unified(s.Path, s.Original, s.Current); diff != "" {
		sb.WriteString("## Changes\n\n```diff\n")
		sb.WriteString(diff)
		sb.WriteString("```\n")
	}
	return sb.String()
}

func writeIteration(sb *strings.Builder, it types.IterationRecord) {
	if len(it.Findings) == 0 {
		sb.WriteString("No findings.\n\n")
		return
	}

	counts := types.CountBySeverity(it.Findings)
	fmt.Fprintf(sb, "%d findings (%d error, %d warning, %d info)\n\n",
		len(it.Findings), counts[types.SeverityError], counts[types.SeverityWarning], counts[types.SeverityInfo])

	sb.WriteString("| Line | Rule | Severity | Message |\n")
	sb.WriteString("|------|------|----------|---------|\n")
	for _, f := range it.Findings {
		fmt.Fprintf(sb, "| %d | %s | %s | %s |\n", f.Line, f.Rule, f.Severity, escapeCell(f.Message))
	}
	sb.WriteString("\n")

	if sources := guidanceSources(it.Guidance); len(sources) > 0 {
		fmt.Fprintf(sb, "Guidance consulted: %s\n\n", strings.Join(sources, ", "))
	}

	switch {
	case it.RepairFailed:
		fmt.Fprintf(sb, "Repair failed: %s\n\n", it.Note)
	case it.Committed:
		sb.WriteString("Candidate verified and committed.\n\n")
	case it.Outcome != "":
		fmt.Fprintf(sb, "Candidate rejected (%s)", it.Outcome)
		if it.Note != "" {
			fmt.Fprintf(sb, ": %s", it.Note)
		}
		sb.WriteString("\n\n")
	case it.Note != "":
		fmt.Fprintf(sb, "%s\n\n", it.Note)
	}
}

// guidanceSources lists the distinct sources across all records, in first
// appearance order.
func guidanceSources(records []types.GuidanceRecord) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, rec := range records {
		for _, p := range rec.Passages {
			if p.Source != "" && !seen[p.Source] {
				seen[p.Source] = true
				sources = append(sources, p.Source)
			}
		}
	}
	return sources
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// RenderBatchSummary builds the markdown summary for a whole run.
func RenderBatchSummary(b *types.BatchReport) string {
	var sb strings.Builder

	sb.WriteString("# Review Summary\n\n")
	mode := "fix"
	if b.ReportOnly {
		mode = "report-only"
	}
	fmt.Fprintf(&sb, "%d files in %s (mode: %s): %d converged, %d exhausted, %d failed\n\n",
		len(b.Files), b.Duration.Round(time.Millisecond), mode, b.Converged, b.Exhausted, b.Failed)

	sb.WriteString("| File | Status | Iterations | Modified | Remaining |\n")
	sb.WriteString("|------|--------|------------|----------|----------|\n")
	for _, f := range b.Files {
		status := string(f.Status)
		if f.Reason != "" && f.Reason != types.ReasonClean {
			status += " (" + string(f.Reason) + ")"
		}
		fmt.Fprintf(&sb, "| %s | %s | %d | %v | %d |\n", f.Path, status, f.Iterations, f.Modified, f.Remaining)
	}

	var errs []types.FileReport
	for _, f := range b.Files {
		if f.Err != "" {
			errs = append(errs, f)
		}
	}
	if len(errs) > 0 {
		sb.WriteString("\n## Errors\n\n")
		for _, f := range errs {
			fmt.Fprintf(&sb, "- `%s`: %s\n", f.Path, f.Err)
		}
	}
	return sb.String()
}
