package workflow

import (
	"testing"

	"github.com/copybara-oss/copybara/pkg/label"
	"github.com/copybara-oss/copybara/pkg/revision"
)

func TestMode_String(t *testing.T) {
	cases := map[Mode]string{
		Squash:        "SQUASH",
		Iterative:     "ITERATIVE",
		ChangeRequest: "CHANGE_REQUEST",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(m), got, want)
		}
	}
}

func TestSquashSummary_ListsEachChange(t *testing.T) {
	changes := []revision.Change{
		{Revision: revision.Revision{SHA1: "aaaaaaaaaaaaaaaa"}, Message: "Fix the bug"},
		{Revision: revision.Revision{SHA1: "bbbbbbbbbbbbbbbb"}, Message: "Add the feature\n\nLonger body"},
	}
	summary := squashSummary(changes)
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
	for _, want := range []string{"Squash of 2 changes", "Fix the bug", "Add the feature"} {
		if !contains(summary, want) {
			t.Errorf("summary %q missing %q", summary, want)
		}
	}
}

func TestResolveBaseline_PrefersExplicitLabel(t *testing.T) {
	e := New(Config{BaselineLabel: "Baseline-Sha1"})
	labels := label.NewMultimap()
	labels.Add("Baseline-Sha1", "abc123")
	change := revision.Change{Message: "msg\n\nBaseline-Sha1: abc123"}

	got, err := e.resolveBaseline(nil, change, revision.Revision{SHA1: "current"})
	if err != nil {
		t.Fatalf("resolveBaseline: %v", err)
	}
	if got != "abc123" {
		t.Errorf("baseline = %q, want abc123", got)
	}
}

func TestMergeChangeLabels_UnionsEveryChangeInOrder(t *testing.T) {
	changes := []revision.Change{
		{Message: "carried noop\n\nGitOrigin-RevId: aaa"},
		{Message: "current change\n\nGitOrigin-RevId: bbb"},
	}
	got := mergeChangeLabels(changes)
	values := got.All("GitOrigin-RevId")
	if len(values) != 2 || values[0] != "aaa" || values[1] != "bbb" {
		t.Errorf("All(GitOrigin-RevId) = %v, want [aaa bbb] in change order", values)
	}
}

func TestMergeChangeLabels_EmptyChangesReturnsNonNilMultimap(t *testing.T) {
	got := mergeChangeLabels(nil)
	if got == nil {
		t.Fatal("mergeChangeLabels(nil) returned a nil *Multimap; destination.Write and pkg/integrate both assume a non-nil Labels field")
	}
	if got.Len() != 0 {
		t.Errorf("Len() = %d, want 0", got.Len())
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
