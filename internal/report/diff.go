package report

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type lineType int

const (
	lineContext lineType = iota
	lineAdded
	lineRemoved
)

type lineOp struct {
	typ     lineType
	oldLine int
	newLine int
	content string
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	ops                []lineOp
}

// Unified renders the change from original to final content as a unified
// diff. Returns "" when the contents are identical.
func Unified(path, original, final string) string {
	if original == final {
		return ""
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	a, b, lineArray := dmp.DiffLinesToChars(original, final)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	ops := toLineOps(diffs)
	hunks := groupHunks(ops, 3)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)
	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, op := range h.ops {
			switch op.typ {
			case lineAdded:
				sb.WriteString("+")
			case lineRemoved:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(op.content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func toLineOps(diffs []diffmatchpatch.Diff) []lineOp {
	var ops []lineOp
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if n := len(lines); n > 0 && lines[n-1] == "" {
			lines = lines[:n-1]
		}
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{lineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{lineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{lineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// groupHunks splits the operation stream into hunks separated by more than
// 2*context unchanged lines, keeping context lines on both edges.
func groupHunks(ops []lineOp, context int) []hunk {
	// Indexes of changed operations.
	var changes []int
	for i, op := range ops {
		if op.typ != lineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []hunk
	start := changes[0] - context
	if start < 0 {
		start = 0
	}
	end := changes[0] + context

	for _, ci := range changes[1:] {
		if ci-context > end+1 {
			hunks = append(hunks, makeHunk(ops, start, end))
			start = ci - context
		}
		end = ci + context
	}
	if end >= len(ops) {
		end = len(ops) - 1
	}
	hunks = append(hunks, makeHunk(ops, start, end))
	return hunks
}

func makeHunk(ops []lineOp, start, end int) hunk {
	if end >= len(ops) {
		end = len(ops) - 1
	}
	h := hunk{ops: ops[start : end+1]}

	h.oldStart = ops[start].oldLine + 1
	h.newStart = ops[start].newLine + 1
	if ops[start].oldLine < 0 {
		h.oldStart = ops[start].newLine + 1
	}
	if ops[start].newLine < 0 {
		h.newStart = ops[start].oldLine + 1
	}

	for _, op := range h.ops {
		if op.typ != lineAdded {
			h.oldCount++
		}
		if op.typ != lineRemoved {
			h.newCount++
		}
	}
	return h
}
