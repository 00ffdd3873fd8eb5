package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUnifiedNoChanges(t *testing.T) {
	g := NewGenerator(false)
	result := g.GenerateUnified("same\ncontent\n", "same\ncontent\n", "todo.md")

	assert.Empty(t, result.Unified)
	assert.Equal(t, 0, result.AddedLines)
	assert.Equal(t, 0, result.DeletedLines)
	assert.Equal(t, "No changes", result.FormatSummary())
}

func TestGenerateUnifiedLineChange(t *testing.T) {
	g := NewGenerator(false)
	oldDoc := "# Task\n\n- [ ] 1. step one\n"
	newDoc := "# Task\n\n- [x] 1. step one\n"

	result := g.GenerateUnified(oldDoc, newDoc, "todo.md")

	assert.Contains(t, result.Unified, "--- a/todo.md")
	assert.Contains(t, result.Unified, "+++ b/todo.md")
	assert.Contains(t, result.Unified, "-- [ ] 1. step one")
	assert.Contains(t, result.Unified, "+- [x] 1. step one")
	assert.Equal(t, 1, result.AddedLines)
	assert.Equal(t, 1, result.DeletedLines)
	assert.Equal(t, "+1 lines, -1 lines", result.FormatSummary())
}

func TestGenerateUnifiedAdditionsOnly(t *testing.T) {
	g := NewGenerator(false)
	oldDoc := "line one\n"
	newDoc := "line one\nline two\nline three\n"

	result := g.GenerateUnified(oldDoc, newDoc, "todo.md")

	assert.Equal(t, 2, result.AddedLines)
	assert.Equal(t, 0, result.DeletedLines)
	assert.Equal(t, "+2 lines", result.FormatSummary())

	var plus int
	for _, line := range strings.Split(result.Unified, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			plus++
		}
	}
	assert.Equal(t, 2, plus)
}

func TestGenerateUnifiedKeepsContext(t *testing.T) {
	g := NewGenerator(false)
	result := g.GenerateUnified("a\nb\nc\n", "a\nB\nc\n", "todo.md")

	assert.Contains(t, result.Unified, " a\n")
	assert.Contains(t, result.Unified, " c\n")
}
