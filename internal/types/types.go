// Package types defines the shared data model for the review-fix pipeline:
// findings, guidance, repair attempts, verification results, and the
// per-file session state driven by the convergence controller.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// =============================================================================
// FINDINGS
// =============================================================================

// Severity classifies a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is a single static-analysis diagnostic tied to a location and rule.
// Findings are produced fresh on every diagnose pass and superseded by the
// next pass; they are never mutated after creation.
type Finding struct {
	File      string   `json:"file"`
	Line      int      `json:"line"`
	EndLine   int      `json:"end_line,omitempty"`
	Column    int      `json:"column,omitempty"`
	Rule      string   `json:"rule"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Analyzer  string   `json:"analyzer,omitempty"`
}

// Key returns a stable identity for delta computation between diagnose
// passes. Line numbers shift between candidates, so identity is rule+message.
func (f Finding) Key() string {
	return f.Rule + "|" + f.Message
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// =============================================================================
// GUIDANCE
// =============================================================================

// GuidancePassage is one ranked passage retrieved from the guideline
// knowledge base.
type GuidancePassage struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
	Title  string  `json:"title,omitempty"`
}

// GuidanceRecord ties retrieved passages to the finding that prompted the
// query. Consumed once by the repairer, never persisted past the iteration.
type GuidanceRecord struct {
	FindingKey string            `json:"finding_key"`
	Query      string            `json:"query"`
	Passages   []GuidancePassage `json:"passages"`
}

// =============================================================================
// REPAIR ATTEMPTS
// =============================================================================

// RepairAttempt is a candidate rewrite of a file, owned exclusively by the
// convergence controller until verified or discarded.
type RepairAttempt struct {
	ID        string           `json:"id"`
	Path      string           `json:"path"`
	BaseHash  string           `json:"base_hash"`
	Candidate string           `json:"candidate"`
	Findings  []Finding        `json:"findings"`
	Guidance  []GuidanceRecord `json:"guidance"`
	CreatedAt time.Time        `json:"created_at"`
}

// HashContent returns the hex sha256 of file content, used to pin an attempt
// to the exact content snapshot it was generated from.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// VERIFICATION
// =============================================================================

// VerificationOutcome is the verdict on a repair attempt.
type VerificationOutcome string

const (
	OutcomePassed   VerificationOutcome = "passed"
	OutcomeFailed   VerificationOutcome = "failed"
	OutcomeErrored  VerificationOutcome = "errored"
	OutcomeTimedOut VerificationOutcome = "timed-out"
)

// DiagnosticDelta summarizes how findings changed between the base content
// and a candidate.
type DiagnosticDelta struct {
	Resolved         []Finding `json:"resolved"`
	Introduced       []Finding `json:"introduced"`
	IntroducedErrors int       `json:"introduced_errors"`
}

// VerificationResult records the verdict for one attempt. A candidate is
// committed iff Outcome == OutcomePassed.
type VerificationResult struct {
	AttemptID string              `json:"attempt_id"`
	Outcome   VerificationOutcome `json:"outcome"`
	Delta     DiagnosticDelta     `json:"delta"`
	ExecRan   bool                `json:"exec_ran"`
	Detail    string              `json:"detail,omitempty"`
	Duration  time.Duration       `json:"duration"`
}

// =============================================================================
// SESSIONS
// =============================================================================

// Status is the lifecycle state of a file session.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusConverged  Status = "converged"
	StatusExhausted  Status = "exhausted"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends the session.
func (s Status) Terminal() bool {
	return s == StatusConverged || s == StatusExhausted || s == StatusFailed
}

// StopReason distinguishes why a session reached a terminal status. The
// three exhaustion-adjacent cases are deliberately separate values so callers
// can tell graceful convergence from a forced stop.
type StopReason string

const (
	ReasonClean      StopReason = "no-findings"
	ReasonBudget     StopReason = "iteration-budget"
	ReasonNoProgress StopReason = "no-progress"
	ReasonFatal      StopReason = "fatal-error"
)

// IterationRecord captures what one diagnose-repair-verify cycle saw and did.
type IterationRecord struct {
	Index        int                 `json:"index"`
	Findings     []Finding           `json:"findings"`
	Guidance     []GuidanceRecord    `json:"guidance,omitempty"`
	Outcome      VerificationOutcome `json:"outcome,omitempty"`
	Committed    bool                `json:"committed"`
	RepairFailed bool                `json:"repair_failed,omitempty"`
	Note         string              `json:"note,omitempty"`
}

// FileSession is the per-file state owned by exactly one controller
// goroutine. Current always holds the last content that passed verification,
// or the original if nothing has passed yet.
type FileSession struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	Original   string            `json:"-"`
	Current    string            `json:"-"`
	BackupPath string            `json:"backup_path"`
	Iterations int               `json:"iterations"`
	History    []IterationRecord `json:"history"`
	Status     Status            `json:"status"`
	Reason     StopReason        `json:"reason,omitempty"`
	Err        string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Modified reports whether any verified candidate was committed.
func (s *FileSession) Modified() bool {
	return s.Current != s.Original
}

// =============================================================================
// BATCH REPORTS
// =============================================================================

// FileReport is the per-file slice of the batch result, in input order.
type FileReport struct {
	Path       string     `json:"path"`
	Status     Status     `json:"status"`
	Reason     StopReason `json:"reason,omitempty"`
	Iterations int        `json:"iterations"`
	Modified   bool       `json:"modified"`
	Remaining  int        `json:"remaining_findings"`
	ReportPath string     `json:"report_path,omitempty"`
	Err        string     `json:"error,omitempty"`
}

// BatchReport aggregates a whole run. Files preserves input order regardless
// of completion order.
type BatchReport struct {
	Files      []FileReport  `json:"files"`
	Converged  int           `json:"converged"`
	Exhausted  int           `json:"exhausted"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
	ReportOnly bool          `json:"report_only"`
}

// Ok reports whether the run should exit zero: every file reached Converged
// or Exhausted and none Failed.
func (b *BatchReport) Ok() bool {
	return b.Failed == 0
}
