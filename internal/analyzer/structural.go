package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"tomato/internal/types"
)

// StructuralAnalyzer is the built-in diagnostic source. It parses Python
// files with Tree-sitter and flags structural smells that the external
// linters are commonly configured to skip: missing docstrings, oversized
// functions, and oversized parameter lists.
type StructuralAnalyzer struct {
	maxFuncLines   int
	maxArguments   int
	wantDocstrings bool
}

// StructuralOptions tunes the built-in checks.
type StructuralOptions struct {
	MaxFuncLines   int
	MaxArguments   int
	WantDocstrings bool
}

// NewStructuralAnalyzer creates the analyzer with the given thresholds.
func NewStructuralAnalyzer(opts StructuralOptions) *StructuralAnalyzer {
	if opts.MaxFuncLines <= 0 {
		opts.MaxFuncLines = 60
	}
	if opts.MaxArguments <= 0 {
		opts.MaxArguments = 6
	}
	return &StructuralAnalyzer{
		maxFuncLines:   opts.MaxFuncLines,
		maxArguments:   opts.MaxArguments,
		wantDocstrings: opts.WantDocstrings,
	}
}

func (s *StructuralAnalyzer) Name() string { return "structural" }

// Diagnose parses the content and walks the AST. Non-Python files produce no
// findings rather than an error so the analyzer can sit in a Multi chain for
// mixed batches.
func (s *StructuralAnalyzer) Diagnose(ctx context.Context, path, content string) ([]types.Finding, error) {
	ext := filepath.Ext(path)
	if ext != ".py" && ext != ".pyw" {
		return nil, nil
	}

	// Tree-sitter parsers are not safe for concurrent use and Diagnose is
	// called from every session in a batch, so each call gets its own.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	src := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("structural: parse %s: %w", path, err)
	}
	defer tree.Close()

	var findings []types.Finding
	root := tree.RootNode()

	if s.wantDocstrings && !hasDocstring(root, src) {
		findings = append(findings, types.Finding{
			File:     path,
			Line:     1,
			Rule:     "TS100",
			Severity: types.SeverityInfo,
			Message:  "missing module docstring",
			Analyzer: s.Name(),
		})
	}

	s.walk(root, path, src, &findings)
	sortFindings(findings)
	return findings, nil
}

func (s *StructuralAnalyzer) walk(node *sitter.Node, path string, src []byte, findings *[]types.Finding) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "function_definition" {
			s.checkFunction(child, path, src, findings)
		}
		s.walk(child, path, src, findings)
	}
}

func (s *StructuralAnalyzer) checkFunction(node *sitter.Node, path string, src []byte, findings *[]types.Finding) {
	nameNode := node.ChildByFieldName("name")
	name := "<anonymous>"
	if nameNode != nil {
		name = string(src[nameNode.StartByte():nameNode.EndByte()])
	}
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1

	if length := endLine - startLine + 1; length > s.maxFuncLines {
		*findings = append(*findings, types.Finding{
			File:     path,
			Line:     startLine,
			EndLine:  endLine,
			Rule:     "TS201",
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("function %q is %d lines long (max %d)", name, length, s.maxFuncLines),
			Analyzer: s.Name(),
		})
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		count := countParameters(params, src)
		if count > s.maxArguments {
			*findings = append(*findings, types.Finding{
				File:     path,
				Line:     startLine,
				Rule:     "TS202",
				Severity: types.SeverityWarning,
				Message:  fmt.Sprintf("function %q takes %d arguments (max %d)", name, count, s.maxArguments),
				Analyzer: s.Name(),
			})
		}
	}

	if s.wantDocstrings {
		if body := node.ChildByFieldName("body"); body != nil && !hasDocstring(body, src) {
			*findings = append(*findings, types.Finding{
				File:     path,
				Line:     startLine,
				Rule:     "TS101",
				Severity: types.SeverityInfo,
				Message:  fmt.Sprintf("function %q has no docstring", name),
				Analyzer: s.Name(),
			})
		}
	}
}

// countParameters counts named parameters, skipping self/cls so methods are
// not penalized for their receiver.
func countParameters(params *sitter.Node, src []byte) int {
	count := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		text := string(src[p.StartByte():p.EndByte()])
		if text == "self" || text == "cls" {
			continue
		}
		count++
	}
	return count
}

// hasDocstring reports whether a module or function body opens with a string
// expression statement.
func hasDocstring(body *sitter.Node, src []byte) bool {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if child.Type() != "expression_statement" {
			return false
		}
		text := strings.TrimSpace(string(src[child.StartByte():child.EndByte()]))
		return strings.HasPrefix(text, `"""`) || strings.HasPrefix(text, `'''`) ||
			strings.HasPrefix(text, `"`) || strings.HasPrefix(text, `'`)
	}
	return false
}
