package review

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tomato/internal/logging"
	"tomato/internal/types"
)

// Reporter persists a per-file review report and returns its path. A nil
// Reporter disables report writing.
type Reporter interface {
	WriteFileReport(s *types.FileSession) (string, error)
}

// Scheduler runs file sessions concurrently under a mini-batch width. Files
// share nothing but read-only configuration; one session's failure never
// affects its siblings.
type Scheduler struct {
	controller *Controller
	reporter   Reporter

	workspace  string
	width      int64
	reportOnly bool
}

// NewScheduler builds a scheduler. Width is the mini-batch width; values
// below one are clamped.
func NewScheduler(controller *Controller, reporter Reporter, workspace string, width int, reportOnly bool) *Scheduler {
	if width < 1 {
		width = 1
	}
	return &Scheduler{
		controller: controller,
		reporter:   reporter,
		workspace:  workspace,
		width:      int64(width),
		reportOnly: reportOnly,
	}
}

// Run processes every path to a terminal status and returns the batch
// report in input order, regardless of completion order. Context
// cancellation lets in-flight sessions finish their current step; files not
// yet started are reported as failed without being touched.
func (s *Scheduler) Run(ctx context.Context, paths []string) *types.BatchReport {
	start := time.Now()
	logging.Scheduler("batch of %d files, width %d, report-only=%v", len(paths), s.width, s.reportOnly)

	sem := semaphore.NewWeighted(s.width)
	reports := make([]types.FileReport, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled before this file started: it was never read or
			// backed up, report it failed and untouched.
			reports[i] = types.FileReport{
				Path:   path,
				Status: types.StatusFailed,
				Reason: types.ReasonFatal,
				Err:    "batch interrupted before start",
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			reports[i] = s.runOne(ctx, path)
		}()
	}
	wg.Wait()

	report := &types.BatchReport{
		Files:      reports,
		Duration:   time.Since(start),
		ReportOnly: s.reportOnly,
	}
	for _, fr := range reports {
		switch fr.Status {
		case types.StatusConverged:
			report.Converged++
		case types.StatusExhausted:
			report.Exhausted++
		default:
			report.Failed++
		}
	}
	logging.Scheduler("batch done in %v: %d converged, %d exhausted, %d failed",
		report.Duration, report.Converged, report.Exhausted, report.Failed)
	return report
}

// runOne owns the whole lifecycle of a single file.
func (s *Scheduler) runOne(ctx context.Context, path string) types.FileReport {
	session, err := NewSession(path, s.workspace, s.reportOnly)
	if err != nil {
		logging.ReviewWarn("%s: session setup failed: %v", path, err)
		return types.FileReport{
			Path:   path,
			Status: types.StatusFailed,
			Reason: types.ReasonFatal,
			Err:    err.Error(),
		}
	}

	s.controller.RunSession(ctx, session)
	state := session.State

	fr := types.FileReport{
		Path:       path,
		Status:     state.Status,
		Reason:     state.Reason,
		Iterations: state.Iterations,
		Modified:   state.Modified(),
		Remaining:  remainingFindings(state),
		Err:        state.Err,
	}

	if s.reporter != nil {
		reportPath, err := s.reporter.WriteFileReport(state)
		if err != nil {
			logging.ReviewWarn("%s: report write failed: %v", path, err)
		} else {
			fr.ReportPath = reportPath
		}
	}
	return fr
}

// remainingFindings counts the findings seen by the last diagnose pass.
func remainingFindings(state *types.FileSession) int {
	if len(state.History) == 0 {
		return 0
	}
	return len(state.History[len(state.History)-1].Findings)
}
