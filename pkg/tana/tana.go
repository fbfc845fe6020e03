// Package tana renders results in Tana Paste Format, the text Tana parses
// into nodes when it is pasted or returned from an API command.
package tana

import (
	"regexp"
	"strings"
)

// NoResults is returned to Tana when a query leaves no match above the
// score threshold.
const NoResults = "No sufficiently well-scored results"

// inlineRefField names the field each extracted inline reference is
// written to.
const inlineRefField = "inline ref"

var inlineRefPattern = regexp.MustCompile(`\[\[[^\]]*\]\]`)

// Ref renders a reference to the node with id.
func Ref(id string) string {
	return "[[^" + id + "]]"
}

// RenderRefs renders one bulleted node reference per id, in order.
func RenderRefs(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString("- ")
		b.WriteString(Ref(id))
		b.WriteString("\n")
	}
	return b.String()
}

// InlineRefs returns every [[...]] reference in text, in order of
// appearance, brackets included.
func InlineRefs(text string) []string {
	return inlineRefPattern.FindAllString(text, -1)
}

// RenderInlineRefs renders one "inline ref" field line per reference.
func RenderInlineRefs(refs []string) string {
	var b strings.Builder
	for _, ref := range refs {
		b.WriteString("- ")
		b.WriteString(inlineRefField)
		b.WriteString("::")
		b.WriteString(ref)
		b.WriteString("\n")
	}
	return b.String()
}
