// Package repair turns findings plus retrieved guidance into a candidate
// rewrite of a file. The executor is deliberately opaque to the review loop:
// it either returns full replacement content or an error, and errors count
// against the session's iteration budget.
package repair

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tomato/internal/llm"
	"tomato/internal/logging"
	"tomato/internal/types"
)

// Repairer is the repair executor contract.
type Repairer interface {
	Repair(ctx context.Context, path, content string, findings []types.Finding, guidance []types.GuidanceRecord) (*types.RepairAttempt, error)
}

// LLMRepairer produces candidates by prompting a language model with the
// findings and the guideline passages retrieved for them.
type LLMRepairer struct {
	client  llm.Client
	timeout time.Duration
}

// NewLLMRepairer creates a repairer with a per-call timeout.
func NewLLMRepairer(client llm.Client, timeout time.Duration) *LLMRepairer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LLMRepairer{client: client, timeout: timeout}
}

const systemPrompt = `You are a careful code fixer. You receive a source file, a list of
static-analysis findings, and excerpts from authoritative style guidelines.

Rewrite the file so the findings are resolved. Rules:
- Preserve the code's behavior exactly; fix style and convention issues only.
- When a finding conflicts with behavior preservation, leave that code alone.
- Never delete functionality, tests, or comments that are unrelated to a finding.
- Respond with the COMPLETE corrected file in a single fenced code block and
  nothing else.`

// Repair prompts the model and wraps the extracted file content in a
// RepairAttempt pinned to the base content's hash.
func (r *LLMRepairer) Repair(ctx context.Context, path, content string, findings []types.Finding, guidance []types.GuidanceRecord) (*types.RepairAttempt, error) {
	if len(findings) == 0 {
		return nil, fmt.Errorf("repair called with no findings for %s", path)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	response, err := r.client.CompleteWithSystem(ctx, systemPrompt, buildUserPrompt(path, content, findings, guidance))
	if err != nil {
		return nil, fmt.Errorf("repair completion for %s: %w", path, err)
	}

	candidate, err := ExtractFileContent(response)
	if err != nil {
		return nil, fmt.Errorf("repair response for %s: %w", path, err)
	}

	logging.Repair("candidate for %s: %d findings, %d guidance records, %v",
		path, len(findings), len(guidance), time.Since(start))

	return &types.RepairAttempt{
		ID:        uuid.NewString(),
		Path:      path,
		BaseHash:  types.HashContent(content),
		Candidate: candidate,
		Findings:  findings,
		Guidance:  guidance,
		CreatedAt: time.Now(),
	}, nil
}

func buildUserPrompt(path, content string, findings []types.Finding, guidance []types.GuidanceRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## File: %s\n\n```\n%s\n```\n\n## Findings\n", path, content)
	for _, f := range findings {
		fmt.Fprintf(&b, "- line %d [%s/%s]: %s\n", f.Line, f.Rule, f.Severity, f.Message)
	}

	if len(guidance) > 0 {
		b.WriteString("\n## Guideline excerpts\n")
		for _, g := range guidance {
			for _, p := range g.Passages {
				fmt.Fprintf(&b, "\n### %s (%s, relevance %.2f)\n%s\n", p.Title, p.Source, p.Score, p.Text)
			}
		}
	}

	b.WriteString("\nReturn the complete corrected file in one fenced code block.")
	return b.String()
}

// ExtractFileContent pulls the file body out of the model response. The
// response must contain exactly the file: either one fenced code block or
// bare content.
func ExtractFileContent(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", fmt.Errorf("empty completion")
	}

	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		// Drop the language tag on the opening fence.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		end := strings.LastIndex(rest, "```")
		if end < 0 {
			return "", fmt.Errorf("unterminated code fence in completion")
		}
		body := rest[:end]
		if strings.TrimSpace(body) == "" {
			return "", fmt.Errorf("empty code block in completion")
		}
		return ensureTrailingNewline(body), nil
	}

	return ensureTrailingNewline(trimmed), nil
}

func ensureTrailingNewline(s string) string {
	if !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}
