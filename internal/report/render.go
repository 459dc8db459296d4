package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"tomato/internal/types"
)

var (
	convergedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	exhaustedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pathStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func statusStyle(s types.Status) lipgloss.Style {
	switch s {
	case types.StatusConverged:
		return convergedStyle
	case types.StatusExhausted:
		return exhaustedStyle
	default:
		return failedStyle
	}
}

// RenderTerminalSummary formats the batch result for the terminal, one line
// per file plus totals.
func RenderTerminalSummary(b *types.BatchReport) string {
	var sb strings.Builder

	for _, f := range b.Files {
		line := fmt.Sprintf("%s %s", statusStyle(f.Status).Render(fmt.Sprintf("%-10s", f.Status)), pathStyle.Render(f.Path))
		detail := fmt.Sprintf("%d iterations", f.Iterations)
		if f.Modified {
			detail += ", modified"
		}
		if f.Remaining > 0 {
			detail += fmt.Sprintf(", %d findings remain", f.Remaining)
		}
		if f.Err != "" {
			detail += ", " + f.Err
		}
		sb.WriteString(line + mutedStyle.Render("  ("+detail+")") + "\n")
	}

	sb.WriteString("\n")
	totals := fmt.Sprintf("%d files: %s converged, %s exhausted, %s failed in %s",
		len(b.Files),
		convergedStyle.Render(fmt.Sprintf("%d", b.Converged)),
		exhaustedStyle.Render(fmt.Sprintf("%d", b.Exhausted)),
		failedStyle.Render(fmt.Sprintf("%d", b.Failed)),
		b.Duration.Round(10*time.Millisecond))
	sb.WriteString(totals + "\n")
	if b.ReportOnly {
		sb.WriteString(mutedStyle.Render("report-only mode: no files were modified") + "\n")
	}
	return sb.String()
}

// RenderMarkdown renders a markdown document for terminal display, falling
// back to the raw text when the renderer cannot be constructed.
func RenderMarkdown(doc string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return doc
	}
	out, err := renderer.Render(doc)
	if err != nil {
		return doc
	}
	return out
}
