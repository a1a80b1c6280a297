// Package origin implements the Origin reader (spec §4.2): resolving refs,
// enumerating changes filtered by glob, and visiting history in batches.
package origin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/revision"
)

// EmptyReason tags why Changes returned an empty list.
type EmptyReason int

const (
	EmptyReasonNone EmptyReason = iota
	// ToIsAncestor means toRev is already an ancestor of fromRev: there is
	// nothing new to migrate.
	ToIsAncestor
	// NoChangesInRoots means the raw commit range was non-empty, but every
	// commit in it was filtered out by the configured glob.
	NoChangesInRoots
	// UnrelatedRevisions means fromRev and toRev share no common ancestor.
	UnrelatedRevisions
)

func (r EmptyReason) String() string {
	switch r {
	case ToIsAncestor:
		return "TO_IS_ANCESTOR"
	case NoChangesInRoots:
		return "NO_CHANGES_IN_ROOTS"
	case UnrelatedRevisions:
		return "UNRELATED_REVISIONS"
	default:
		return "NONE"
	}
}

// ChangesResponse is the result of Changes: either a non-empty ordered list
// of changes, or an empty list tagged with why.
type ChangesResponse struct {
	Changes     []revision.Change
	EmptyReason EmptyReason
}

// Empty reports whether this response carries no changes.
func (r ChangesResponse) Empty() bool { return len(r.Changes) == 0 }

// VisitResult is returned by a Visitor to control VisitChanges's paging.
type VisitResult int

const (
	Continue VisitResult = iota
	Terminate
)

// Visitor is called once per change, in reverse-chronological order, by
// VisitChanges.
type Visitor func(c revision.Change) VisitResult

// branchLogHeading prefixes the inlined branch-commit-log block appended to
// a merge commit's message when Config.IncludeBranchCommitLogs is set.
const branchLogHeading = "--\nMERGE_COMMIT_BRANCH_LOG\n--"

// Config parameterizes a GitOrigin, per spec §4.2.
type Config struct {
	Glob revision.Glob

	// FirstParent makes Changes/VisitChanges walk first-parent only
	// (cmd/copybara always sets it); when false, they enumerate the
	// transitive parent set instead, while IsMerge is still set correctly
	// on every Change.
	FirstParent bool

	// IncludeBranchCommitLogs, when true, makes merge commits inherit the
	// (glob-filtered) messages of the commits they merge in, as a single
	// appended block.
	IncludeBranchCommitLogs bool

	// VisitBatchSize bounds how many commits VisitChanges requests from git
	// per page. Zero means DefaultVisitBatchSize.
	VisitBatchSize int

	// OriginRebaseRef, if set, makes Checkout rebase the requested revision
	// onto this ref before materializing the work tree.
	OriginRebaseRef string

	// CLIRefOverride, if set, makes Resolve return this ref instead of the
	// one the caller requested (logged as a warning every time it fires).
	CLIRefOverride string

	// BaselineLabel is the commit-message label name FindBaselinesWithoutLabel
	// treats as "already has an explicit baseline".
	BaselineLabel string
}

// DefaultVisitBatchSize is used when Config.VisitBatchSize is zero.
const DefaultVisitBatchSize = 1000

// GitOrigin is the git-backed Origin reader.
type GitOrigin struct {
	repo *gitrepo.Repo
	url  string
	cfg  Config
	log  *slog.Logger
}

// New returns a GitOrigin reading from repo (already fetched/up to date),
// with url kept for diagnostics and label provenance.
func New(repo *gitrepo.Repo, url string, cfg Config, log *slog.Logger) *GitOrigin {
	if cfg.VisitBatchSize <= 0 {
		cfg.VisitBatchSize = DefaultVisitBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &GitOrigin{repo: repo, url: url, cfg: cfg, log: log}
}

// Resolve resolves ref to a Revision. When Config.CLIRefOverride is set,
// that ref is resolved instead of the requested one and a warning is
// logged; the origin URL itself cannot be overridden.
func (o *GitOrigin) Resolve(ctx context.Context, ref string) (revision.Revision, error) {
	effective := ref
	if o.cfg.CLIRefOverride != "" {
		o.log.Warn("origin ref overridden from command line", "requested", ref, "override", o.cfg.CLIRefOverride)
		effective = o.cfg.CLIRefOverride
	}

	rev, err := o.repo.ResolveReference(ctx, effective)
	if err != nil {
		return revision.Revision{}, err
	}
	rev.URL = o.url
	return rev, nil
}

// isAncestor reports whether ancestor is reachable from descendant.
func (o *GitOrigin) isAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := o.repo.SimpleCommand(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	if copybaraerror.KindOf(err) == copybaraerror.KindRepo {
		// exit code 1 with no stderr is git's "not an ancestor" answer, not a
		// failure; classifyRunErr only has stderr text to go on, so a
		// content-free KindRepo here is treated as a plain "false".
		return false, nil
	}
	return false, err
}

func (o *GitOrigin) hasCommonAncestor(ctx context.Context, a, b string) bool {
	_, err := o.repo.SimpleCommand(ctx, "merge-base", a, b)
	return err == nil
}

// Changes enumerates the commits in (fromRev, toRev], reverse of
// `git log fromRev..toRev` (i.e. oldest first; with --first-parent when
// Config.FirstParent is set),
// filtered by the configured glob, per spec §4.2. A zero-value fromRev
// means "from the beginning of history".
func (o *GitOrigin) Changes(ctx context.Context, fromRev, toRev revision.Revision) (ChangesResponse, error) {
	if !fromRev.IsZero() && fromRev.Equal(toRev) {
		return ChangesResponse{EmptyReason: ToIsAncestor}, nil
	}

	if !fromRev.IsZero() {
		if ok, err := o.isAncestor(ctx, toRev.SHA1, fromRev.SHA1); err == nil && ok {
			return ChangesResponse{EmptyReason: ToIsAncestor}, nil
		}
		if !o.hasCommonAncestor(ctx, fromRev.SHA1, toRev.SHA1) {
			return ChangesResponse{EmptyReason: UnrelatedRevisions}, nil
		}
	}

	revRange := toRev.SHA1
	if !fromRev.IsZero() {
		revRange = fromRev.SHA1 + ".." + toRev.SHA1
	}

	raw, err := o.repo.Log(ctx, revRange, gitrepo.LogOptions{
		IncludeFiles: true,
		FirstParent:  o.cfg.FirstParent,
		Reverse:      true,
	})
	if err != nil {
		return ChangesResponse{}, fmt.Errorf("listing changes %s: %w", revRange, err)
	}

	filtered := o.filterAndEnrich(ctx, raw)
	if len(filtered) == 0 {
		if len(raw) == 0 {
			return ChangesResponse{EmptyReason: ToIsAncestor}, nil
		}
		return ChangesResponse{EmptyReason: NoChangesInRoots}, nil
	}

	return ChangesResponse{Changes: filtered}, nil
}

// filterAndEnrich applies glob filtering (P3's ALLFILES special case) and,
// when configured, branch-commit-log inlining.
func (o *GitOrigin) filterAndEnrich(ctx context.Context, raw []revision.Change) []revision.Change {
	out := make([]revision.Change, 0, len(raw))
	for _, c := range raw {
		if !o.includedByGlob(c) {
			continue
		}
		if o.cfg.IncludeBranchCommitLogs && c.IsMerge {
			o.inlineBranchLog(ctx, &c)
		}
		out = append(out, c)
	}
	return out
}

// includedByGlob implements spec §4.2's glob-filtering rule: a commit is
// included iff its changed-file set intersects the glob, except that for
// the degenerate ALLFILES glob, commits with an empty changed-file set
// (root commits, empty merges) are still included -- the legacy behavior
// named in P3.
func (o *GitOrigin) includedByGlob(c revision.Change) bool {
	if o.cfg.Glob.IsAllFiles() {
		return true
	}
	if o.cfg.Glob.IsEmpty() {
		return false
	}
	return o.cfg.Glob.MatchesAny(c.Files)
}

// inlineBranchLog appends the glob-filtered messages of the branch commits
// a merge commit brings in, under a fixed heading, per spec §4.2.
func (o *GitOrigin) inlineBranchLog(ctx context.Context, c *revision.Change) {
	if len(c.Parents) < 2 {
		return
	}
	mainline, second := c.Parents[0].SHA1, c.Parents[1].SHA1
	branchCommits, err := o.repo.Log(ctx, mainline+".."+second, gitrepo.LogOptions{
		IncludeFiles: true,
		Reverse:      true,
	})
	if err != nil {
		o.log.Warn("failed to inline branch commit log", "merge", c.Revision.SHA1, "error", err)
		return
	}

	var lines []string
	for _, bc := range branchCommits {
		if !o.includedByGlob(bc) {
			continue
		}
		lines = append(lines, bc.FirstLineMessage())
	}
	if len(lines) == 0 {
		return
	}

	c.Message = c.Message + "\n\n" + branchLogHeading + "\n" + strings.Join(lines, "\n")
}

// Change returns a single Change for rev, including labels parsed from its
// message body.
func (o *GitOrigin) Change(ctx context.Context, rev revision.Revision) (revision.Change, error) {
	changes, err := o.repo.Log(ctx, rev.SHA1+"^.."+rev.SHA1, gitrepo.LogOptions{
		IncludeFiles: true,
		Limit:        1,
	})
	if err != nil || len(changes) == 0 {
		// a root commit has no "^" parent; retry without the range.
		changes, err = o.repo.Log(ctx, rev.SHA1, gitrepo.LogOptions{IncludeFiles: true, Limit: 1})
		if err != nil {
			return revision.Change{}, fmt.Errorf("reading change %s: %w", rev.SHA1, err)
		}
	}
	if len(changes) == 0 {
		return revision.Change{}, copybaraerror.Newf(copybaraerror.KindValidation, rev.SHA1, "no such change")
	}
	return changes[0], nil
}

// VisitChanges walks history backwards from startRev in reverse-chronological
// order, paging in batches of Config.VisitBatchSize, calling visitor once per
// change until it returns Terminate or history is exhausted.
func (o *GitOrigin) VisitChanges(ctx context.Context, startRev revision.Revision, visitor Visitor) error {
	cursor := startRev.SHA1
	for {
		batch, err := o.repo.Log(ctx, cursor, gitrepo.LogOptions{
			IncludeFiles: true,
			FirstParent:  o.cfg.FirstParent,
			Limit:        o.cfg.VisitBatchSize,
		})
		if err != nil {
			return fmt.Errorf("visiting changes from %s: %w", cursor, err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, c := range batch {
			if !o.includedByGlob(c) {
				continue
			}
			if visitor(c) == Terminate {
				return nil
			}
		}

		if len(batch) < o.cfg.VisitBatchSize {
			return nil
		}
		last := batch[len(batch)-1]
		if len(last.Parents) == 0 {
			return nil
		}
		cursor = last.Parents[0].SHA1
	}
}

// FindBaselinesWithoutLabel walks back from startRev collecting up to limit
// revisions whose Change carries no Config.BaselineLabel label, for use by
// CHANGE_REQUEST mode when the origin carries no explicit baseline label.
func (o *GitOrigin) FindBaselinesWithoutLabel(ctx context.Context, startRev revision.Revision, limit int) ([]revision.Revision, error) {
	var found []revision.Revision
	err := o.VisitChanges(ctx, startRev, func(c revision.Change) VisitResult {
		if _, ok := c.Labels().Get(o.cfg.BaselineLabel); !ok {
			found = append(found, c.Revision)
			if len(found) >= limit {
				return Terminate
			}
		}
		return Continue
	})
	return found, err
}

// Checkout materializes rev into workdir. If Config.OriginRebaseRef is set,
// rev is rebased onto it first; a conflict surfaces as KindRebaseConflict
// through gitrepo's error classification.
func (o *GitOrigin) Checkout(ctx context.Context, rev revision.Revision, workdir string) error {
	wt := o.repo.At(workdir)
	if err := wt.ForceCheckout(ctx, rev.SHA1); err != nil {
		return fmt.Errorf("checking out %s: %w", rev.SHA1, err)
	}

	if o.cfg.OriginRebaseRef == "" {
		return nil
	}

	branch := "copybara/origin-checkout"
	if err := wt.Branch(ctx, branch, rev.SHA1); err != nil {
		return fmt.Errorf("branching for rebase: %w", err)
	}
	if err := wt.ForceCheckout(ctx, branch); err != nil {
		return fmt.Errorf("checking out rebase branch: %w", err)
	}
	if err := wt.Rebase(ctx, branch, o.cfg.OriginRebaseRef); err != nil {
		return fmt.Errorf("rebasing %s onto %s: %w", rev.SHA1, o.cfg.OriginRebaseRef, err)
	}
	return nil
}
