package integrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/label"
	"github.com/copybara-oss/copybara/pkg/revision"
)

// Strategy selects how a referenced revision is folded into the current
// commit, per spec §4.4.
type Strategy int

const (
	FakeMerge Strategy = iota
	FakeMergeAndIncludeFiles
	IncludeFiles
)

func (s Strategy) String() string {
	switch s {
	case FakeMergeAndIncludeFiles:
		return "FAKE_MERGE_AND_INCLUDE_FILES"
	case IncludeFiles:
		return "INCLUDE_FILES"
	default:
		return "FAKE_MERGE"
	}
}

// Binding configures how one label name should be resolved.
type Binding struct {
	LabelName    string
	Strategy     Strategy
	IgnoreErrors bool // network-level failures become a no-op for this label
}

// Resolver applies integrate labels found in a commit message to a staged
// work tree, per spec §4.4. It satisfies pkg/destination's Integrator
// interface.
type Resolver struct {
	repo     *gitrepo.Repo
	bindings []Binding
	log      *slog.Logger

	fetchSeq int
}

// NewResolver returns a Resolver operating on repo (a cache-backed bare
// repo with a work tree already attached via At()).
func NewResolver(repo *gitrepo.Repo, bindings []Binding, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{repo: repo, bindings: bindings, log: log}
}

// Integrate resolves every configured binding's labels found in labels,
// against the commit currently checked out in workdir (tip). Multiple
// labels chain: each resolved FAKE_MERGE produces a commit whose first
// parent is the previous integration tip (spec §4.4). When the final tip
// differs from the work tree's HEAD (a FAKE_MERGE ran), the work tree is
// force-checked-out at it; if only INCLUDE_FILES strategies ran, HEAD is
// left unchanged.
func (r *Resolver) Integrate(ctx context.Context, workdir string, labels *label.Multimap) error {
	wt := r.repo.At(workdir)
	tip, err := wt.ResolveReference(ctx, "HEAD")
	if err != nil {
		return fmt.Errorf("resolving HEAD before integrate: %w", err)
	}

	for _, b := range r.bindings {
		values := labels.All(b.LabelName)
		for _, value := range values {
			ref, perr := ParseLabelValue(value)
			if perr != nil {
				return copybaraerror.Newf(copybaraerror.KindValidation, value, "parsing integrate label: %w", perr)
			}

			newTip, aerr := r.applyOne(ctx, wt, tip, ref, b.Strategy)
			if aerr != nil {
				if b.IgnoreErrors && copybaraerror.KindOf(aerr) == copybaraerror.KindTransient {
					r.log.Warn("ignoring integrate failure (network)", "label", b.LabelName, "value", value, "error", aerr)
					continue
				}
				return aerr
			}
			tip = newTip
		}
	}

	if !tip.Equal(mustHead(ctx, wt)) {
		return wt.ForceCheckout(ctx, tip.SHA1)
	}
	return nil
}

func mustHead(ctx context.Context, wt *gitrepo.Repo) revision.Revision {
	head, _ := wt.ResolveReference(ctx, "HEAD")
	return head
}

// applyOne fetches ref's revision and folds it into tip per strategy,
// returning the new tip.
func (r *Resolver) applyOne(ctx context.Context, wt *gitrepo.Repo, tip revision.Revision, ref Reference, strategy Strategy) (revision.Revision, error) {
	r.fetchSeq++
	fetchRef := fmt.Sprintf("refs/copybara/integrate/%d", r.fetchSeq)

	if _, err := wt.Fetch(ctx, ref.URL, []string{ref.Ref + ":" + fetchRef}, gitrepo.FetchOptions{}); err != nil {
		return revision.Revision{}, fmt.Errorf("fetching integrate source %s %s: %w", ref.URL, ref.Ref, err)
	}
	resolved, err := wt.ResolveReference(ctx, fetchRef)
	if err != nil {
		return revision.Revision{}, fmt.Errorf("resolving fetched integrate ref: %w", err)
	}

	r.warnIfNewerCommitsExist(ctx, wt, ref, resolved)

	switch strategy {
	case IncludeFiles:
		return tip, r.includeFiles(ctx, wt, tip, resolved)
	case FakeMerge:
		return r.fakeMerge(ctx, wt, tip, resolved, ref, false)
	case FakeMergeAndIncludeFiles:
		if err := r.includeFiles(ctx, wt, tip, resolved); err != nil {
			return revision.Revision{}, err
		}
		return r.fakeMerge(ctx, wt, tip, resolved, ref, true)
	default:
		return revision.Revision{}, fmt.Errorf("unknown integrate strategy %v", strategy)
	}
}

// warnIfNewerCommitsExist surfaces spec §4.4's "has more changes after
// <sha>" warning when the fetched ref has commits beyond the requested
// sha (the label was written against an older tip of a still-moving
// branch).
func (r *Resolver) warnIfNewerCommitsExist(ctx context.Context, wt *gitrepo.Repo, ref Reference, resolved revision.Revision) {
	if ref.Ref == resolved.SHA1 {
		return // label already names the fetched tip exactly
	}
	out, err := wt.SimpleCommand(ctx, "rev-list", "--count", ref.Ref+".."+resolved.SHA1)
	if err != nil {
		return
	}
	if strings.TrimSpace(out) != "0" && strings.TrimSpace(out) != "" {
		r.log.Warn("integrate source has more changes after requested revision", "requested", ref.Ref, "tip", resolved.SHA1)
	}
}

// includeFiles implements INCLUDE_FILES: the tree diff of resolved relative
// to its merge-base with tip is applied directly to the staged work tree;
// no new commit is created.
func (r *Resolver) includeFiles(ctx context.Context, wt *gitrepo.Repo, tip, resolved revision.Revision) error {
	base, err := wt.MergeBase(ctx, tip.SHA1, resolved.SHA1)
	if err != nil {
		return fmt.Errorf("finding merge-base for include_files: %w", err)
	}
	patch, err := wt.DiffTree(ctx, base, resolved.SHA1)
	if err != nil {
		return fmt.Errorf("diffing include_files tree: %w", err)
	}
	if err := wt.ApplyPatch(ctx, patch); err != nil {
		return fmt.Errorf("applying include_files patch: %w", err)
	}
	return nil
}

// fakeMerge implements FAKE_MERGE (and the merge half of
// FAKE_MERGE_AND_INCLUDE_FILES): a merge commit with parents (tip,
// resolved), whose tree is tip's tree -- unless includeFilesApplied is
// true, in which case includeFiles has already staged the union tree and
// that staged tree (not tip's) is committed.
func (r *Resolver) fakeMerge(ctx context.Context, wt *gitrepo.Repo, tip, resolved revision.Revision, ref Reference, includeFilesApplied bool) (revision.Revision, error) {
	tree := ""
	var err error
	if includeFilesApplied {
		tree, err = wt.SimpleCommand(ctx, "write-tree")
		if err != nil {
			return revision.Revision{}, fmt.Errorf("writing union tree for fake merge: %w", err)
		}
		tree = strings.TrimSpace(tree)
	} else {
		tree, err = wt.TreeOf(ctx, tip.SHA1)
		if err != nil {
			return revision.Revision{}, fmt.Errorf("reading tree for fake merge: %w", err)
		}
	}

	var author revision.Author
	if tipLog, lerr := wt.Log(ctx, tip.SHA1, gitrepo.LogOptions{Limit: 1}); lerr == nil && len(tipLog) > 0 {
		author = tipLog[0].Author
	}

	message := fakeMergeMessage(ref)
	merged, err := wt.CommitTree(ctx, tree, []string{tip.SHA1, resolved.SHA1}, message, author, time.Time{})
	if err != nil {
		return revision.Revision{}, fmt.Errorf("creating fake merge commit: %w", err)
	}
	return merged, nil
}

// fakeMergeMessage renders spec §4.4's provider-specific merge message.
func fakeMergeMessage(ref Reference) string {
	switch ref.Provider {
	case ProviderGitHub:
		return fmt.Sprintf("Merge pull request #%d from %s/%s", ref.Number, ref.FromUser, ref.FromBranch)
	case ProviderGerrit:
		msg := fmt.Sprintf("Merge Gerrit change %d Patch Set %d", ref.Number, ref.PatchSet)
		if ref.ChangeID != "" {
			msg = label.Append(msg, "Change-Id", ref.ChangeID)
		}
		return msg
	default:
		return fmt.Sprintf("Merge of %s", ref.Ref)
	}
}
