package analyzer

import (
	"regexp"
	"strconv"
	"strings"

	"tomato/internal/types"
)

// conciseLine matches the common linter output shape shared by ruff's
// concise format and pylint's parseable format:
//
//	path:line:col: CODE message
//	path:line: CODE message
var conciseLine = regexp.MustCompile(`^(.*?):(\d+)(?::(\d+))?:?\s+([A-Z]+\d+|[A-Z]\d+|[a-z-]+)[:]?\s+(.*)$`)

// ParseConcise parses linter output lines into findings. The linter ran
// against a scratch copy, so every finding's file is rewritten to the real
// target path. Unparseable lines are skipped.
func ParseConcise(output, path, analyzerName string) []types.Finding {
	var findings []types.Finding
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := conciseLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		lineNum, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		col := 0
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}

		rule := m[4]
		findings = append(findings, types.Finding{
			File:     path,
			Line:     lineNum,
			Column:   col,
			Rule:     rule,
			Severity: severityForRule(rule),
			Message:  strings.TrimSpace(m[5]),
			Analyzer: analyzerName,
		})
	}
	return findings
}

// severityForRule maps lint rule prefixes onto the three-level severity
// scale. Pylint errors/fatals (E/F) and ruff's syntax class are errors,
// conventions and refactors are info, everything else is a warning.
func severityForRule(rule string) types.Severity {
	if rule == "" {
		return types.SeverityWarning
	}
	switch rule[0] {
	case 'E', 'F':
		return types.SeverityError
	case 'C', 'R', 'I':
		return types.SeverityInfo
	default:
		return types.SeverityWarning
	}
}
