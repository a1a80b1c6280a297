package gitrepo

import (
	"testing"
)

func TestParseLogOutput_SingleCommit(t *testing.T) {
	out := recordSep +
		"abc123" + fieldSep +
		"" + fieldSep +
		"Ada Lovelace" + fieldSep +
		"ada@example.com" + fieldSep +
		"2024-01-02T03:04:05+00:00" + fieldSep +
		"Ada Lovelace" + fieldSep +
		"ada@example.com" + fieldSep +
		"2024-01-02T03:04:05+00:00" + fieldSep +
		"Fix the thing\n\nLonger body.\n" + headerEnd +
		"\nfile_a.go\nfile_b.go\n"

	changes, err := parseLogOutput(out)
	if err != nil {
		t.Fatalf("parseLogOutput: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}

	c := changes[0]
	if c.Revision.SHA1 != "abc123" {
		t.Errorf("sha1 = %q", c.Revision.SHA1)
	}
	if c.IsMerge {
		t.Errorf("expected non-merge commit")
	}
	if c.Author.Name != "Ada Lovelace" || c.Author.Email != "ada@example.com" {
		t.Errorf("author = %+v", c.Author)
	}
	if c.FirstLineMessage() != "Fix the thing" {
		t.Errorf("first line = %q", c.FirstLineMessage())
	}
	if len(c.Files) != 2 || c.Files[0] != "file_a.go" || c.Files[1] != "file_b.go" {
		t.Errorf("files = %v", c.Files)
	}
}

func TestParseLogOutput_MergeCommitHasTwoParents(t *testing.T) {
	out := recordSep +
		"m1" + fieldSep +
		"p1 p2" + fieldSep +
		"A" + fieldSep + "a@x.com" + fieldSep + "2024-01-01T00:00:00+00:00" + fieldSep +
		"A" + fieldSep + "a@x.com" + fieldSep + "2024-01-01T00:00:00+00:00" + fieldSep +
		"Merge branch 'b'\n" + headerEnd + "\n"

	changes, err := parseLogOutput(out)
	if err != nil {
		t.Fatalf("parseLogOutput: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if !changes[0].IsMerge {
		t.Errorf("expected IsMerge = true")
	}
	if len(changes[0].Parents) != 2 {
		t.Fatalf("got %d parents, want 2", len(changes[0].Parents))
	}
	if changes[0].Parents[0].SHA1 != "p1" || changes[0].Parents[1].SHA1 != "p2" {
		t.Errorf("parents = %v", changes[0].Parents)
	}
}

func TestParseLogOutput_MultipleRecords(t *testing.T) {
	rec := func(sha string) string {
		return recordSep + sha + fieldSep + "" + fieldSep + "A" + fieldSep + "a@x.com" + fieldSep +
			"2024-01-01T00:00:00+00:00" + fieldSep + "A" + fieldSep + "a@x.com" + fieldSep +
			"2024-01-01T00:00:00+00:00" + fieldSep + "msg\n" + headerEnd + "\n"
	}
	out := rec("one") + rec("two") + rec("three")

	changes, err := parseLogOutput(out)
	if err != nil {
		t.Fatalf("parseLogOutput: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("got %d changes, want 3", len(changes))
	}
	if changes[0].Revision.SHA1 != "one" || changes[2].Revision.SHA1 != "three" {
		t.Errorf("unexpected order: %+v", changes)
	}
}

func TestParseLogOutput_EmptyInput(t *testing.T) {
	changes, err := parseLogOutput("")
	if err != nil {
		t.Fatalf("parseLogOutput: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("got %d changes, want 0", len(changes))
	}
}
