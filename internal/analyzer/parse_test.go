package analyzer

import (
	"testing"

	"tomato/internal/types"
)

func TestParseConcise(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []types.Finding
	}{
		{
			name:   "ruff concise with column",
			output: "/tmp/scratch.py:3:1: E501 line too long (120 > 100)",
			want: []types.Finding{{
				File: "pkg/app.py", Line: 3, Column: 1, Rule: "E501",
				Severity: types.SeverityError, Message: "line too long (120 > 100)", Analyzer: "ruff",
			}},
		},
		{
			name:   "pylint without column",
			output: "scratch.py:12: C0114 missing module docstring",
			want: []types.Finding{{
				File: "pkg/app.py", Line: 12, Rule: "C0114",
				Severity: types.SeverityInfo, Message: "missing module docstring", Analyzer: "ruff",
			}},
		},
		{
			name:   "warning code",
			output: "scratch.py:5:9: W0611 unused import os",
			want: []types.Finding{{
				File: "pkg/app.py", Line: 5, Column: 9, Rule: "W0611",
				Severity: types.SeverityWarning, Message: "unused import os", Analyzer: "ruff",
			}},
		},
		{
			name:   "blank and noise lines skipped",
			output: "\nAll checks passed!\n\nscratch.py:1:1: F401 `os` imported but unused\n",
			want: []types.Finding{{
				File: "pkg/app.py", Line: 1, Column: 1, Rule: "F401",
				Severity: types.SeverityError, Message: "`os` imported but unused", Analyzer: "ruff",
			}},
		},
		{
			name:   "no findings",
			output: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseConcise(tt.output, "pkg/app.py", "ruff")
			if len(got) != len(tt.want) {
				t.Fatalf("got %d findings, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("finding %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSeverityForRule(t *testing.T) {
	tests := []struct {
		rule string
		want types.Severity
	}{
		{"E501", types.SeverityError},
		{"F401", types.SeverityError},
		{"C0114", types.SeverityInfo},
		{"R0913", types.SeverityInfo},
		{"W0611", types.SeverityWarning},
		{"D100", types.SeverityWarning},
		{"", types.SeverityWarning},
	}
	for _, tt := range tests {
		if got := severityForRule(tt.rule); got != tt.want {
			t.Errorf("severityForRule(%q) = %s, want %s", tt.rule, got, tt.want)
		}
	}
}
