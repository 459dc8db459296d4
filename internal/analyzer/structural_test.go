package analyzer

import (
	"context"
	"strings"
	"sync"
	"testing"

	"tomato/internal/types"
)

func structuralFindings(t *testing.T, content string, opts StructuralOptions) []types.Finding {
	t.Helper()
	findings, err := NewStructuralAnalyzer(opts).Diagnose(context.Background(), "sample.py", content)
	if err != nil {
		t.Fatal(err)
	}
	return findings
}

func rulesOf(findings []types.Finding) map[string]int {
	rules := make(map[string]int)
	for _, f := range findings {
		rules[f.Rule]++
	}
	return rules
}

func TestStructuralDocstringChecks(t *testing.T) {
	content := `import os

def documented():
    """Has a docstring."""
    return os.getcwd()

def undocumented():
    return 1
`
	rules := rulesOf(structuralFindings(t, content, StructuralOptions{WantDocstrings: true}))

	if rules["TS100"] != 1 {
		t.Errorf("expected missing module docstring, got rules %v", rules)
	}
	if rules["TS101"] != 1 {
		t.Errorf("expected exactly one undocumented function, got rules %v", rules)
	}
}

func TestStructuralCleanModule(t *testing.T) {
	content := `"""Module docstring."""

def f(a, b):
    """Documented."""
    return a + b
`
	findings := structuralFindings(t, content, StructuralOptions{WantDocstrings: true})
	if len(findings) != 0 {
		t.Errorf("clean module should have no findings, got %+v", findings)
	}
}

func TestStructuralTooManyArguments(t *testing.T) {
	content := `"""Doc."""

def wide(a, b, c, d):
    """Doc."""
    return a

class C:
    def method(self, a, b, c, d):
        """Doc."""
        return a
`
	rules := rulesOf(structuralFindings(t, content, StructuralOptions{
		MaxArguments:   3,
		WantDocstrings: true,
	}))

	// Both functions take 4 real arguments; self is not counted.
	if rules["TS202"] != 2 {
		t.Errorf("expected 2 argument-count findings, got %v", rules)
	}
}

func TestStructuralLongFunction(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("\"\"\"Doc.\"\"\"\n\ndef long_one():\n    \"\"\"Doc.\"\"\"\n")
	for i := 0; i < 20; i++ {
		sb.WriteString("    x = 1\n")
	}

	rules := rulesOf(structuralFindings(t, sb.String(), StructuralOptions{
		MaxFuncLines:   10,
		WantDocstrings: true,
	}))
	if rules["TS201"] != 1 {
		t.Errorf("expected long-function finding, got %v", rules)
	}
}

func TestStructuralConcurrentDiagnose(t *testing.T) {
	content := `import os

def undocumented(a, b, c, d, e, f, g):
    return os.getcwd()
`
	a := NewStructuralAnalyzer(StructuralOptions{MaxArguments: 3, WantDocstrings: true})

	// One analyzer instance serves every concurrent session in a batch, so
	// parallel Diagnose calls must neither crash nor disagree.
	const workers = 16
	var wg sync.WaitGroup
	results := make([][]types.Finding, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.Diagnose(context.Background(), "sample.py", content)
		}(i)
	}
	wg.Wait()

	want := rulesOf(results[0])
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if got := rulesOf(results[i]); len(got) == 0 || got["TS202"] != want["TS202"] {
			t.Errorf("worker %d diverged: got %v, want %v", i, got, want)
		}
	}
}

func TestStructuralSkipsNonPython(t *testing.T) {
	findings, err := NewStructuralAnalyzer(StructuralOptions{WantDocstrings: true}).
		Diagnose(context.Background(), "main.go", "package main")
	if err != nil {
		t.Fatal(err)
	}
	if findings != nil {
		t.Errorf("non-python files should produce no findings, got %+v", findings)
	}
}
