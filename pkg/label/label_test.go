package label_test

import (
	"slices"
	"testing"

	"github.com/copybara-oss/copybara/pkg/label"
)

func TestParse_TrailingBlock(t *testing.T) {
	msg := "Fix the thing\n\nLonger description here.\n\nDummyOrigin-RevId: abc123\nReviewed-by: alice\n"

	m := label.Parse(msg)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	v, ok := m.Get("DummyOrigin-RevId")
	if !ok || v != "abc123" {
		t.Errorf("Get(DummyOrigin-RevId) = %q, %v, want abc123, true", v, ok)
	}

	v, ok = m.Get("Reviewed-by")
	if !ok || v != "alice" {
		t.Errorf("Get(Reviewed-by) = %q, %v, want alice, true", v, ok)
	}
}

func TestParse_NoTrailingBlock(t *testing.T) {
	msg := "Just a summary\n\nA paragraph that happens to contain a colon: but is prose."
	m := label.Parse(msg)
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestParse_DuplicateLabelsPreserveOrder(t *testing.T) {
	msg := "Squash of three changes\n\nOrigin-Label: c1\nOrigin-Label: c2\nOrigin-Label: c3"
	m := label.Parse(msg)

	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	if got := m.All("Origin-Label"); !slices.Equal(got, []string{"c1", "c2", "c3"}) {
		t.Errorf("All(Origin-Label) = %v, want [c1 c2 c3]", got)
	}

	last, ok := m.Get("Origin-Label")
	if !ok || last != "c3" {
		t.Errorf("Get(Origin-Label) = %q, %v, want c3, true (scalar lookup returns the last occurrence)", last, ok)
	}
}

func TestAppend_ExistingBlockNoBlankLineInserted(t *testing.T) {
	msg := "Fix the thing\n\nReviewed-by: alice"
	out := label.Append(msg, "DummyOrigin-RevId", "deadbeef")

	want := "Fix the thing\n\nReviewed-by: alice\nDummyOrigin-RevId: deadbeef"
	if out != want {
		t.Errorf("Append = %q, want %q", out, want)
	}
}

func TestAppend_NoExistingBlockInsertsBlankLine(t *testing.T) {
	msg := "Fix the thing\n\nJust a description, no labels here."
	out := label.Append(msg, "DummyOrigin-RevId", "deadbeef")

	want := "Fix the thing\n\nJust a description, no labels here.\n\nDummyOrigin-RevId: deadbeef"
	if out != want {
		t.Errorf("Append = %q, want %q", out, want)
	}
}

func TestAppend_EmptyMessage(t *testing.T) {
	out := label.Append("", "DummyOrigin-RevId", "deadbeef")
	if out != "DummyOrigin-RevId: deadbeef" {
		t.Errorf("Append = %q, want %q", out, "DummyOrigin-RevId: deadbeef")
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	m := label.NewMultimap()
	m.Add("Origin-Label", "c1")
	m.Add("Reviewed-by", "bob")
	m.Add("Origin-Label", "c2")

	rendered := label.Render(m)
	reparsed := label.Parse(rendered)

	if reparsed.Len() != m.Len() {
		t.Fatalf("reparsed.Len() = %d, want %d", reparsed.Len(), m.Len())
	}
	for _, want := range m.Labels() {
		if !slices.Contains(reparsed.All(want.Name), want.Value) {
			t.Errorf("reparsed.All(%s) = %v, missing %q", want.Name, reparsed.All(want.Name), want.Value)
		}
	}
}
