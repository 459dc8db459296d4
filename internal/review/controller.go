package review

import (
	"context"
	"fmt"

	"tomato/internal/analyzer"
	"tomato/internal/knowledge"
	"tomato/internal/logging"
	"tomato/internal/repair"
	"tomato/internal/types"
	"tomato/internal/verify"
)

// Controller drives one session through the diagnose→retrieve→repair→verify
// cycle until a terminal status. It is stateless across sessions and safe to
// share between goroutines; all mutable state lives in the Session.
type Controller struct {
	diagnose  analyzer.Analyzer
	retriever knowledge.Retriever
	repairer  repair.Repairer
	verifier  *verify.Verifier

	maxIterations int
	topK          int
}

// NewController wires the pipeline stages. The analyzer and retriever are
// expected to carry their own retry/degrade wrappers; the controller treats
// their errors as unrecoverable.
func NewController(
	diagnose analyzer.Analyzer,
	retriever knowledge.Retriever,
	repairer repair.Repairer,
	verifier *verify.Verifier,
	maxIterations, topK int,
) *Controller {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Controller{
		diagnose:      diagnose,
		retriever:     retriever,
		repairer:      repairer,
		verifier:      verifier,
		maxIterations: maxIterations,
		topK:          topK,
	}
}

// RunSession advances the session to a terminal status. The sequence within
// one iteration is strictly ordered: repair must see diagnostics from the
// same content snapshot it rewrites.
func (c *Controller) RunSession(ctx context.Context, s *Session) {
	state := s.State
	lastCandidateHash := ""

	for {
		// Interrupt: the current step finished, the last committed content
		// is on disk, stop here.
		if ctx.Err() != nil {
			s.fail(fmt.Errorf("interrupted after %d iterations", state.Iterations))
			return
		}

		// Budget check at the top of Diagnosing.
		if state.Iterations >= c.maxIterations {
			logging.Review("%s: iteration budget %d exhausted", state.Path, c.maxIterations)
			s.finish(types.StatusExhausted, types.ReasonBudget)
			return
		}

		findings, err := c.diagnose.Diagnose(ctx, state.Path, state.Current)
		// An interrupt that landed mid-diagnose must not be mistaken for a
		// clean pass: empty findings from a cancelled run prove nothing.
		if ctx.Err() != nil {
			s.fail(fmt.Errorf("interrupted after %d iterations", state.Iterations))
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("diagnose: %w", err))
			return
		}

		record := types.IterationRecord{Index: len(state.History), Findings: findings}

		if len(findings) == 0 {
			state.History = append(state.History, record)
			logging.Review("%s: no findings, converged after %d iterations", state.Path, state.Iterations)
			s.finish(types.StatusConverged, types.ReasonClean)
			return
		}
		logging.Review("%s: iteration %d: %d findings", state.Path, state.Iterations, len(findings))

		// Retrieval is advisory: the wrapped retriever degrades to empty
		// guidance instead of erroring.
		guidance := knowledge.GatherGuidance(ctx, c.retriever, findings, c.topK)
		record.Guidance = guidance

		attempt, err := c.repairer.Repair(ctx, state.Path, state.Current, findings, guidance)
		if err != nil {
			// Hard repair failure burns an iteration and retries from a
			// fresh diagnose pass.
			logging.RepairWarn("%s: repair failed on iteration %d: %v", state.Path, state.Iterations, err)
			record.RepairFailed = true
			record.Note = err.Error()
			state.History = append(state.History, record)
			state.Iterations++
			continue
		}

		// No-progress detection: a candidate byte-identical to the previous
		// one means the repairer is stuck; stop before wasting the budget.
		candidateHash := types.HashContent(attempt.Candidate)
		if candidateHash == lastCandidateHash {
			record.Note = ErrNoProgress.Error()
			state.History = append(state.History, record)
			logging.Review("%s: identical candidate twice, stopping", state.Path)
			s.finish(types.StatusExhausted, types.ReasonNoProgress)
			return
		}
		lastCandidateHash = candidateHash

		result := c.verifier.Verify(ctx, attempt)
		record.Outcome = result.Outcome
		state.Iterations++

		if result.Outcome == types.OutcomePassed {
			if err := s.Commit(attempt.Candidate); err != nil {
				record.Note = err.Error()
				state.History = append(state.History, record)
				s.fail(err)
				return
			}
			record.Committed = true
			logging.Review("%s: iteration %d committed (resolved %d, introduced %d)",
				state.Path, state.Iterations-1, len(result.Delta.Resolved), len(result.Delta.Introduced))
		} else {
			// Discard the candidate; current content is untouched. The next
			// diagnose pass reconsiders the same findings.
			record.Note = result.Detail
			logging.Review("%s: iteration %d rejected (%s)", state.Path, state.Iterations-1, result.Outcome)
		}
		state.History = append(state.History, record)
	}
}
