package integrate

import "testing"

func TestParseLabelValue_Generic(t *testing.T) {
	ref, err := ParseLabelValue("https://example.com/repo.git integrate-branch")
	if err != nil {
		t.Fatalf("ParseLabelValue: %v", err)
	}
	if ref.Provider != ProviderGeneric {
		t.Errorf("provider = %v, want generic", ref.Provider)
	}
	if ref.URL != "https://example.com/repo.git" || ref.Ref != "integrate-branch" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestParseLabelValue_GitHub(t *testing.T) {
	ref, err := ParseLabelValue("https://github.com/acme/widgets/pull/42 from contributor:fix-bug deadbeefcafe")
	if err != nil {
		t.Fatalf("ParseLabelValue: %v", err)
	}
	if ref.Provider != ProviderGitHub {
		t.Errorf("provider = %v, want github", ref.Provider)
	}
	if ref.Org != "acme" || ref.Repo != "widgets" || ref.Number != 42 {
		t.Errorf("org/repo/number = %q/%q/%d", ref.Org, ref.Repo, ref.Number)
	}
	if ref.FromUser != "contributor" || ref.FromBranch != "fix-bug" {
		t.Errorf("from = %q:%q", ref.FromUser, ref.FromBranch)
	}
	if ref.Ref != "deadbeefcafe" {
		t.Errorf("ref = %q", ref.Ref)
	}
}

func TestParseLabelValue_Gerrit(t *testing.T) {
	ref, err := ParseLabelValue("gerrit gerrit.example.com 1234 Patch Set 5 [I1234abcd]")
	if err != nil {
		t.Fatalf("ParseLabelValue: %v", err)
	}
	if ref.Provider != ProviderGerrit {
		t.Errorf("provider = %v, want gerrit", ref.Provider)
	}
	if ref.URL != "gerrit.example.com" || ref.Number != 1234 || ref.PatchSet != 5 {
		t.Errorf("host/number/patchset = %q/%d/%d", ref.URL, ref.Number, ref.PatchSet)
	}
	if ref.ChangeID != "I1234abcd" {
		t.Errorf("changeID = %q", ref.ChangeID)
	}
}

func TestParseLabelValue_GerritWithoutChangeID(t *testing.T) {
	ref, err := ParseLabelValue("gerrit gerrit.example.com 1234 Patch Set 5")
	if err != nil {
		t.Fatalf("ParseLabelValue: %v", err)
	}
	if ref.ChangeID != "" {
		t.Errorf("changeID = %q, want empty", ref.ChangeID)
	}
}

func TestParseLabelValue_MalformedGeneric(t *testing.T) {
	if _, err := ParseLabelValue("no-space-here"); err == nil {
		t.Fatal("expected error for malformed generic label")
	}
}

func TestParseLabelValue_MalformedGitHubMissingColon(t *testing.T) {
	if _, err := ParseLabelValue("https://github.com/acme/widgets/pull/42 from contributorbranch sha"); err == nil {
		t.Fatal("expected error for missing user:branch colon")
	}
}
