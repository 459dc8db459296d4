package repair

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"tomato/internal/types"
)

func TestExtractFileContent(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "fenced with language tag",
			response: "Here is the fix:\n```python\ndef f():\n    return 1\n```\n",
			want:     "def f():\n    return 1\n",
		},
		{
			name:     "fenced without language tag",
			response: "```\nx = 1\n```",
			want:     "x = 1\n",
		},
		{
			name:     "bare content",
			response: "x = 1",
			want:     "x = 1\n",
		},
		{
			name:     "inner backticks survive",
			response: "```python\ns = \"```\"\nprint(s)\n```",
			want:     "s = \"```\"\nprint(s)\n",
		},
		{
			name:     "empty response",
			response: "   \n",
			wantErr:  true,
		},
		{
			name:     "unterminated fence",
			response: "```python\nx = 1\n",
			wantErr:  true,
		},
		{
			name:     "empty code block",
			response: "```python\n\n```",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractFileContent(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeClient struct {
	response string
	err      error
	lastUser string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastUser = userPrompt
	return f.response, f.err
}

func TestLLMRepairerProducesPinnedAttempt(t *testing.T) {
	client := &fakeClient{response: "```python\nfixed = True\n```"}
	r := NewLLMRepairer(client, time.Minute)

	findings := []types.Finding{{Line: 2, Rule: "E501", Severity: types.SeverityError, Message: "line too long"}}
	guidance := []types.GuidanceRecord{{
		FindingKey: "E501|line too long",
		Passages:   []types.GuidancePassage{{Text: "keep lines short", Source: "pep8.md", Title: "PEP 8", Score: 0.8}},
	}}

	attempt, err := r.Repair(context.Background(), "app.py", "broken = True\n", findings, guidance)
	if err != nil {
		t.Fatal(err)
	}

	if attempt.Candidate != "fixed = True\n" {
		t.Errorf("candidate = %q", attempt.Candidate)
	}
	if attempt.BaseHash != types.HashContent("broken = True\n") {
		t.Error("attempt must be pinned to the content it was generated from")
	}
	if len(attempt.Findings) != 1 {
		t.Errorf("attempt should carry its findings, got %d", len(attempt.Findings))
	}

	// The prompt must surface the file, the finding, and the guidance.
	for _, fragment := range []string{"app.py", "broken = True", "E501", "keep lines short"} {
		if !strings.Contains(client.lastUser, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
}

func TestLLMRepairerPropagatesModelFailure(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("rate limited")}
	r := NewLLMRepairer(client, time.Minute)

	findings := []types.Finding{{Rule: "E501", Severity: types.SeverityError, Message: "line too long"}}
	_, err := r.Repair(context.Background(), "app.py", "x\n", findings, nil)
	if err == nil {
		t.Fatal("model failure must surface as a repair error")
	}
	if client.lastUser == "" {
		t.Error("the client must have been prompted before the failure surfaced")
	}
}

func TestLLMRepairerRejectsEmptyFindings(t *testing.T) {
	client := &fakeClient{response: "```python\nx = 1\n```"}
	r := NewLLMRepairer(client, time.Minute)

	_, err := r.Repair(context.Background(), "app.py", "x = 1\n", nil, nil)
	if err == nil {
		t.Fatal("a clean file has nothing to repair; calling Repair on it is a bug")
	}
	if client.lastUser != "" {
		t.Error("no prompt should be sent when there is nothing to fix")
	}
}

func TestLLMRepairerAcceptsBareResponse(t *testing.T) {
	client := &fakeClient{response: "I cannot help with that."}
	r := NewLLMRepairer(client, time.Minute)

	findings := []types.Finding{{Rule: "W0611", Severity: types.SeverityWarning, Message: "unused import"}}
	attempt, err := r.Repair(context.Background(), "app.py", "x = 1\n", findings, nil)
	if err != nil {
		t.Fatalf("bare content is accepted as the file body: %v", err)
	}
	if attempt.Candidate != "I cannot help with that.\n" {
		t.Errorf("candidate = %q", attempt.Candidate)
	}
}
