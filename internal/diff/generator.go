// Package diff renders line diffs of the progress document so iteration
// logs show what the agent changed instead of the whole rewritten file.
package diff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Generator produces unified-style line diffs.
type Generator struct {
	colorEnabled bool
}

// NewGenerator creates a diff generator. Color is for terminal consumers;
// log files want it off.
func NewGenerator(colorEnabled bool) *Generator {
	return &Generator{colorEnabled: colorEnabled}
}

// Result contains the rendered diff and its line statistics.
type Result struct {
	Unified      string
	AddedLines   int
	DeletedLines int
}

// GenerateUnified diffs two document versions line by line. Identical
// contents produce an empty diff.
func (g *Generator) GenerateUnified(oldContent, newContent, filename string) *Result {
	if oldContent == newContent {
		return &Result{}
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var body strings.Builder
	added, deleted := 0, 0

	for _, d := range diffs {
		prefix := " "
		var attr color.Attribute
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
			attr = color.FgGreen
		case diffmatchpatch.DiffDelete:
			prefix = "-"
			attr = color.FgRed
		}
		for _, line := range splitDiffLines(d.Text) {
			rendered := prefix + line + "\n"
			if d.Type != diffmatchpatch.DiffEqual {
				rendered = g.colorize(rendered, attr)
			}
			body.WriteString(rendered)
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				added++
			case diffmatchpatch.DiffDelete:
				deleted++
			}
		}
	}

	var out strings.Builder
	out.WriteString(g.colorize("--- a/"+filename+"\n", color.FgRed))
	out.WriteString(g.colorize("+++ b/"+filename+"\n", color.FgGreen))
	out.WriteString(g.colorize(fmt.Sprintf("@@ -1,%d +1,%d @@\n", countLines(oldContent), countLines(newContent)), color.FgCyan))
	out.WriteString(body.String())

	return &Result{
		Unified:      out.String(),
		AddedLines:   added,
		DeletedLines: deleted,
	}
}

// FormatSummary returns a short human-readable change summary.
func (r *Result) FormatSummary() string {
	if r.AddedLines == 0 && r.DeletedLines == 0 {
		return "No changes"
	}
	parts := []string{}
	if r.AddedLines > 0 {
		parts = append(parts, fmt.Sprintf("+%d lines", r.AddedLines))
	}
	if r.DeletedLines > 0 {
		parts = append(parts, fmt.Sprintf("-%d lines", r.DeletedLines))
	}
	return strings.Join(parts, ", ")
}

func (g *Generator) colorize(text string, attr color.Attribute) string {
	if !g.colorEnabled {
		return text
	}
	return color.New(attr).Sprint(text)
}

// splitDiffLines splits a diff fragment into lines, dropping the empty tail
// produced by a trailing newline.
func splitDiffLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return len(splitDiffLines(content))
}
