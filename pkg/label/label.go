// Package label implements Copybara's commit-message label trailer: an
// ordered, duplicate-preserving multimap parsed out of (and rendered back
// into) the final block of consecutive "Name: value" lines in a commit
// message body.
//
// The label line grammar is fixed and given bit-exact by spec §6
// (`^<LabelName>: <value>$`, name is alphanumeric plus `-_`), so this
// package matches it with regexp rather than a parser-combinator library:
// there is no nesting or recursion to justify pulling in a combinator
// grammar here (that need shows up in pkg/integrate instead, parsing the
// free-form COPYBARA_INTEGRATE_REVIEW argument list).
package label

import (
	"regexp"
	"strings"
)

// lineRgx matches a single trailer line: name, literal ": ", value.
var lineRgx = regexp.MustCompile(`^([A-Za-z0-9_-]+): (.*)$`)

// Label is one occurrence of a label line inside a commit message.
type Label struct {
	Name  string
	Value string
	Line  string // the whole "Name: value" line, verbatim
}

// Multimap is an ordered, duplicate-preserving collection of labels. Two
// labels with the same Name may both be present; order of insertion is
// preserved. For scalar reads the convention is "last occurrence wins".
type Multimap struct {
	labels []Label
}

// NewMultimap returns an empty label multimap.
func NewMultimap() *Multimap {
	return &Multimap{}
}

// Add appends a new occurrence of name=value to the multimap, preserving
// any earlier occurrences of the same name.
func (m *Multimap) Add(name, value string) {
	m.labels = append(m.labels, Label{Name: name, Value: value, Line: name + ": " + value})
}

// Get returns the value of the last occurrence of name, and whether it was
// found at all. A nil receiver (an unset TransformResult.Labels, say)
// behaves like an empty multimap rather than panicking.
func (m *Multimap) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for i := len(m.labels) - 1; i >= 0; i-- {
		if m.labels[i].Name == name {
			return m.labels[i].Value, true
		}
	}
	return "", false
}

// All returns every value of name, in the order they were added. A nil
// receiver returns nil.
func (m *Multimap) All(name string) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, l := range m.labels {
		if l.Name == name {
			out = append(out, l.Value)
		}
	}
	return out
}

// Labels returns all labels (every name), in insertion order. A nil
// receiver returns nil.
func (m *Multimap) Labels() []Label {
	if m == nil {
		return nil
	}
	out := make([]Label, len(m.labels))
	copy(out, m.labels)
	return out
}

// Len reports how many label occurrences (across all names) are present.
// A nil receiver reports 0.
func (m *Multimap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.labels)
}

// trailingBlock returns the line-range [start, len(lines)) of the final
// contiguous run of label lines at the end of message, or (len(lines), nil)
// if message does not end in a label block.
func trailingBlock(lines []string) (start int, parsed []Label) {
	end := len(lines)
	// trim trailing blank lines first: a message can end with "\n" producing
	// an empty trailing element after Split, which is not part of the block.
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	i := end
	for i > 0 {
		m := lineRgx.FindStringSubmatch(lines[i-1])
		if m == nil {
			break
		}
		i--
	}
	if i == end {
		return len(lines), nil
	}
	for _, line := range lines[i:end] {
		m := lineRgx.FindStringSubmatch(line)
		parsed = append(parsed, Label{Name: m[1], Value: m[2], Line: line})
	}
	return i, parsed
}

// Parse extracts the label multimap from the final trailing label block of
// a commit message body. Duplicates are preserved in order, per spec §3.
// A message with no trailing label block yields an empty Multimap.
func Parse(message string) *Multimap {
	lines := strings.Split(message, "\n")
	_, parsed := trailingBlock(lines)
	return &Multimap{labels: parsed}
}

// HasTrailingBlock reports whether message already ends (ignoring trailing
// blank lines) in one or more consecutive label lines.
func HasTrailingBlock(message string) bool {
	lines := strings.Split(message, "\n")
	start, parsed := trailingBlock(lines)
	return start < len(lines) && len(parsed) > 0
}

// Append implements the label-appending rule from spec §6 / P1: if message
// already ends in a trailing label block, name=value is appended as one
// more line inside that block (no blank line inserted). Otherwise a blank
// line is inserted and a new one-line block is started. Exactly one
// occurrence of name=value is added; any existing occurrences of name are
// left untouched, satisfying "every write appends exactly one origin-label
// occurrence per commit" without removing a caller's own prior labels.
func Append(message, name, value string) string {
	newLine := name + ": " + value

	trimmed := strings.TrimRight(message, "\n")
	lines := strings.Split(trimmed, "\n")
	start, parsed := trailingBlock(lines)

	if start < len(lines) && len(parsed) > 0 {
		lines = append(lines, newLine)
		return strings.Join(lines, "\n")
	}

	if trimmed == "" {
		return newLine
	}
	return trimmed + "\n\n" + newLine
}

// Render reproduces the canonical trailer-block text for m: each label on
// its own line, in insertion order. Parse(Render(m)) reconstructs an
// equivalent multimap for any m whose values contain no newlines (the
// round-trip law from spec §8).
func Render(m *Multimap) string {
	lines := make([]string, 0, len(m.labels))
	for _, l := range m.labels {
		lines = append(lines, l.Name+": "+l.Value)
	}
	return strings.Join(lines, "\n")
}
