// Package analyzer provides diagnostic sources for the review loop. An
// analyzer takes file content and returns structured findings; the loop
// treats every analyzer as a black box that must be deterministic for
// identical input, since no-progress detection depends on it.
package analyzer

import (
	"context"
	"sort"

	"tomato/internal/logging"
	"tomato/internal/types"
)

// Analyzer is the diagnostic source contract. Diagnose receives the content
// to analyze rather than reading the path from disk: the loop diagnoses
// candidates that have not been committed yet.
type Analyzer interface {
	Name() string
	Diagnose(ctx context.Context, path, content string) ([]types.Finding, error)
}

// Multi fans out to several analyzers and merges their findings into a
// stable order (line, then rule, then message).
type Multi struct {
	analyzers []Analyzer
}

// NewMulti builds a composite analyzer.
func NewMulti(analyzers ...Analyzer) *Multi {
	return &Multi{analyzers: analyzers}
}

func (m *Multi) Name() string { return "multi" }

// Diagnose runs every analyzer in order. A single analyzer's error fails the
// whole pass; degradation policy lives in WithRetry, not here.
func (m *Multi) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	var all []types.Finding
	for _, a := range m.analyzers {
		findings, err := a.Diagnose(ctx, path, content)
		if err != nil {
			return nil, err
		}
		all = append(all, findings...)
	}
	sortFindings(all)
	return all, nil
}

func sortFindings(findings []types.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Line != findings[j].Line {
			return findings[i].Line < findings[j].Line
		}
		if findings[i].Rule != findings[j].Rule {
			return findings[i].Rule < findings[j].Rule
		}
		return findings[i].Message < findings[j].Message
	})
}

// WithRetry wraps an analyzer with the loop's degradation policy: a failed
// diagnose is retried once immediately, then treated as an empty result so a
// flaky linter never aborts the session.
type WithRetry struct {
	inner Analyzer
}

// NewWithRetry wraps an analyzer.
func NewWithRetry(inner Analyzer) *WithRetry {
	return &WithRetry{inner: inner}
}

func (w *WithRetry) Name() string { return w.inner.Name() }

func (w *WithRetry) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	findings, err := w.inner.Diagnose(ctx, path, content)
	if err == nil {
		return findings, nil
	}
	// A cancelled run is not a flaky linter; the session must see it.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	logging.AnalyzerWarn("%s: diagnose failed, retrying once: %v", w.inner.Name(), err)
	findings, err = w.inner.Diagnose(ctx, path, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.AnalyzerWarn("%s: retry failed, degrading to empty findings: %v", w.inner.Name(), err)
		return nil, nil
	}
	return findings, nil
}

// Delta computes which findings were resolved and which were introduced
// between two diagnose passes. Identity is rule+message, since line numbers
// shift under edits.
func Delta(before, after []types.Finding) types.DiagnosticDelta {
	beforeKeys := make(map[string]int, len(before))
	for _, f := range before {
		beforeKeys[f.Key()]++
	}

	delta := types.DiagnosticDelta{}
	afterKeys := make(map[string]int, len(after))
	for _, f := range after {
		afterKeys[f.Key()]++
		if beforeKeys[f.Key()] == 0 {
			delta.Introduced = append(delta.Introduced, f)
			if f.Severity == types.SeverityError {
				delta.IntroducedErrors++
			}
		}
	}
	for _, f := range before {
		if afterKeys[f.Key()] == 0 {
			delta.Resolved = append(delta.Resolved, f)
		}
	}
	return delta
}
