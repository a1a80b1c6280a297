package integrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/label"
	"github.com/copybara-oss/copybara/pkg/revision"
)

func newTestRepo(t *testing.T) (*gitrepo.Repo, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "repo.git")
	repo := gitrepo.New(dir, nil)
	if err := repo.Init(context.Background(), true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return repo, dir
}

func writeAndCommit(t *testing.T, ctx context.Context, wt *gitrepo.Repo, rel, content, message string) revision.Revision {
	t.Helper()
	full := filepath.Join(wt.WorkTree, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := wt.Add(ctx, nil, true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	commit, err := wt.Commit(ctx, gitrepo.CommitOptions{
		Author:  revision.Author{Name: "Tester", Email: "tester@example.com"},
		Message: message,
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return commit
}

// setupMainAndFeature seeds a real bare repo with a "main" branch and a
// "feature" branch one commit ahead of it, returning both tips.
func setupMainAndFeature(t *testing.T, ctx context.Context, repo *gitrepo.Repo, featureRel, featureContent string) (main, feature revision.Revision, seed *gitrepo.Repo) {
	t.Helper()
	seed = repo.At(t.TempDir())
	main = writeAndCommit(t, ctx, seed, "README.md", "hello\n", "initial")
	if err := seed.Branch(ctx, "main", main.SHA1); err != nil {
		t.Fatalf("Branch(main): %v", err)
	}
	if err := seed.Branch(ctx, "feature", main.SHA1); err != nil {
		t.Fatalf("Branch(feature): %v", err)
	}
	if err := seed.ForceCheckout(ctx, "feature"); err != nil {
		t.Fatalf("ForceCheckout(feature): %v", err)
	}
	feature = writeAndCommit(t, ctx, seed, featureRel, featureContent, "feature work")
	if err := seed.ForceCheckout(ctx, "main"); err != nil {
		t.Fatalf("ForceCheckout(main): %v", err)
	}
	return main, feature, seed
}

// TestResolver_Integrate_FakeMerge exercises spec P5 directly against
// Resolver.Integrate: FAKE_MERGE must produce a commit with exactly two
// parents, the prior tip and the referenced sha, in that order.
func TestResolver_Integrate_FakeMerge(t *testing.T) {
	ctx := context.Background()
	repo, repoDir := newTestRepo(t)
	mainTip, featureTip, seed := setupMainAndFeature(t, ctx, repo, "feature.txt", "feature work\n")

	resolver := NewResolver(repo, []Binding{
		{LabelName: "COPYBARA_INTEGRATE_REVIEW", Strategy: FakeMerge},
	}, nil)

	labels := label.Parse("COPYBARA_INTEGRATE_REVIEW: " + repoDir + " feature")
	if err := resolver.Integrate(ctx, seed.WorkTree, labels); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	head, err := repo.ResolveReference(ctx, "HEAD")
	if err != nil {
		t.Fatalf("ResolveReference(HEAD): %v", err)
	}
	merged, err := repo.Log(ctx, head.SHA1, gitrepo.LogOptions{Limit: 1})
	if err != nil || len(merged) == 0 {
		t.Fatalf("Log(HEAD): %v, %v", merged, err)
	}
	if len(merged[0].Parents) != 2 {
		t.Fatalf("fake-merge commit has %d parents, want 2 (P5)", len(merged[0].Parents))
	}
	if merged[0].Parents[0].SHA1 != mainTip.SHA1 || merged[0].Parents[1].SHA1 != featureTip.SHA1 {
		t.Errorf("parents = %v, want [%s, %s], in that order (P5)", merged[0].Parents, mainTip.SHA1, featureTip.SHA1)
	}
	if want := "Merge of feature"; merged[0].FirstLineMessage() != want {
		t.Errorf("message = %q, want %q", merged[0].FirstLineMessage(), want)
	}
}

// TestResolver_Integrate_IncludeFiles covers the other strategy Integrate
// supports: the referenced tree is applied directly to the staged work
// tree, with no merge commit and no change to HEAD.
func TestResolver_Integrate_IncludeFiles(t *testing.T) {
	ctx := context.Background()
	repo, repoDir := newTestRepo(t)
	mainTip, _, seed := setupMainAndFeature(t, ctx, repo, "included.txt", "brought in via include_files\n")

	resolver := NewResolver(repo, []Binding{
		{LabelName: "COPYBARA_INTEGRATE_REVIEW", Strategy: IncludeFiles},
	}, nil)

	labels := label.Parse("COPYBARA_INTEGRATE_REVIEW: " + repoDir + " feature")
	if err := resolver.Integrate(ctx, seed.WorkTree, labels); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	head, err := repo.ResolveReference(ctx, "HEAD")
	if err != nil {
		t.Fatalf("ResolveReference(HEAD): %v", err)
	}
	if head.SHA1 != mainTip.SHA1 {
		t.Errorf("HEAD = %s, want unchanged at %s (INCLUDE_FILES stages into the work tree, it does not commit)", head.SHA1, mainTip.SHA1)
	}

	data, err := os.ReadFile(filepath.Join(seed.WorkTree, "included.txt"))
	if err != nil {
		t.Fatalf("expected included.txt to be staged into the work tree: %v", err)
	}
	if string(data) != "brought in via include_files\n" {
		t.Errorf("included.txt content = %q", data)
	}
}

// TestResolver_Integrate_UnparsableLabelFailsEvenWithIgnoreErrors covers the
// limit of the IgnoreErrors escape hatch (spec §4.4): it only turns
// network-level failures into a no-op, so a malformed label value still
// fails the write.
func TestResolver_Integrate_UnparsableLabelFailsEvenWithIgnoreErrors(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	_, _, seed := setupMainAndFeature(t, ctx, repo, "feature.txt", "feature work\n")

	resolver := NewResolver(repo, []Binding{
		{LabelName: "COPYBARA_INTEGRATE_REVIEW", Strategy: FakeMerge, IgnoreErrors: true},
	}, nil)

	labels := label.Parse("COPYBARA_INTEGRATE_REVIEW: no-space-here")
	if err := resolver.Integrate(ctx, seed.WorkTree, labels); err == nil {
		t.Fatalf("Integrate: nil error, want a parse failure (IgnoreErrors covers network failures only)")
	}
}
