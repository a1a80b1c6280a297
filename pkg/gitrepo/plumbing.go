// Package gitrepo is the type-safe façade over the `git` command-line
// described in spec §4.1: every operation spawns one child process,
// supplies a sanitized environment, and returns typed results instead of
// raw strings (except where the contract explicitly names a string, e.g.
// credentialFill's user/password pair).
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/copybara-oss/copybara/pkg/revision"
)

// Repo is a handle to a git directory (--git-dir) and, optionally, a
// detached work-tree (--work-tree) checked out from it. A zero-value
// WorkTree means the handle only supports bare-repo operations (fetch,
// push, log, resolveReference, ...); operations that need a materialized
// tree (add, commit, forceCheckout, merge, rebase, cherryPick) require
// At() to have been called first.
type Repo struct {
	GitDir   string
	WorkTree string
	Envs     []string // extra whitelisted env vars (GIT_SSH_COMMAND, GIT_AUTHOR_*, ...)
	Log      *slog.Logger
}

// New returns a handle to the bare repo at gitDir.
func New(gitDir string, log *slog.Logger) *Repo {
	return &Repo{GitDir: gitDir, Log: log}
}

// At returns a copy of r scoped to a detached work-tree, for operations
// that need one.
func (r *Repo) At(workTree string) *Repo {
	cp := *r
	cp.WorkTree = workTree
	return &cp
}

func (r *Repo) baseArgs() []string {
	args := []string{"--git-dir=" + r.GitDir}
	if r.WorkTree != "" {
		args = append(args, "--work-tree="+r.WorkTree)
	}
	return args
}

func (r *Repo) env(extra ...string) []string {
	return SanitizedEnv(append(append([]string{}, r.Envs...), extra...)...)
}

func (r *Repo) run(ctx context.Context, args ...string) (runResult, error) {
	full := append(r.baseArgs(), args...)
	res, err := run(ctx, r.Log, "", r.env(), full...)
	return res, classifyRunErr(r.GitDir, res.Stderr, err)
}

// Init creates a new repository at r.GitDir; bare controls --bare.
func (r *Repo) Init(ctx context.Context, bare bool) error {
	args := []string{"init", "-q"}
	if bare {
		args = append(args, "--bare")
	}
	// init doesn't take --git-dir the way other commands do (the dir is an
	// operand), so this bypasses run()'s baseArgs.
	args = append(args, r.GitDir)
	_, err := run(ctx, r.Log, "", r.env(), args...)
	return classifyRunErr(r.GitDir, "", err)
}

// Clone clones url at ref (branch or sha1) into dst, returning a Repo
// handle scoped to the resulting work tree.
func Clone(ctx context.Context, url, ref, dst string, log *slog.Logger, envs []string) (*Repo, error) {
	args := []string{"clone", "--no-checkout", url, dst}
	if _, err := run(ctx, log, "", SanitizedEnv(envs...), args...); err != nil {
		return nil, classifyRunErr(url, "", err)
	}

	r := &Repo{GitDir: dst + "/.git", WorkTree: dst, Envs: envs, Log: log}
	if ref == "" {
		ref = "HEAD"
	}
	if err := r.ForceCheckout(ctx, ref); err != nil {
		return nil, err
	}
	return r, nil
}

// FetchOptions configures Fetch, per spec §4.1.
type FetchOptions struct {
	PartialFetch bool // fetch blobs lazily (shallow-ish clone of history)
	Prune        bool
	Force        bool
	Depth        int // 0 means unbounded
}

// Fetch runs `git fetch url refspecs...` and returns the refs git reported
// as updated. Failures are classified transient (network) vs permanent
// (auth, bad refspec) by classifyRunErr.
func (r *Repo) Fetch(ctx context.Context, url string, refspecs []string, opts FetchOptions) ([]string, error) {
	args := []string{"fetch", "--no-progress", "--porcelain"}
	if opts.Prune {
		args = append(args, "--prune")
	}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.PartialFetch {
		args = append(args, "--filter=blob:none")
	}
	args = append(args, url)
	args = append(args, refspecs...)

	res, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseUpdatedRefs(res.Stdout), nil
}

func parseUpdatedRefs(porcelainOut string) []string {
	var refs []string
	for _, line := range strings.Split(porcelainOut, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		// porcelain format: <flag> <old-sha> <new-sha> <local-ref>
		if len(fields) >= 4 {
			refs = append(refs, fields[3])
		}
	}
	return refs
}

// SetPartialFetch toggles `remote.<name>.partialclonefilter` for the bare
// repo cache's blob:none optimisation, per spec §4.1.
func (r *Repo) SetPartialFetch(ctx context.Context, remoteName string, enabled bool) error {
	key := "remote." + remoteName + ".partialclonefilter"
	if !enabled {
		_, err := r.run(ctx, "config", "--unset", key)
		if err != nil && strings.Contains(err.Error(), "exit status 5") {
			return nil // key was already absent
		}
		return err
	}
	_, err := r.run(ctx, "config", key, "blob:none")
	return err
}

// PushStatus classifies the outcome of Push.
type PushStatus int

const (
	PushOK PushStatus = iota
	PushNonFastForward
	PushFailed
)

// Push runs `git push url refspecs...`, classifying a rejected push into
// PushNonFastForward (remote rejected because local history is behind) vs
// PushFailed (everything else), per spec §4.1.
func (r *Repo) Push(ctx context.Context, url string, refspecs []string, force bool, pushOptions []string) (PushStatus, error) {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	for _, po := range pushOptions {
		args = append(args, "--push-option="+po)
	}
	args = append(args, url)
	args = append(args, refspecs...)

	res, err := r.run(ctx, args...)
	if err == nil {
		return PushOK, nil
	}
	lower := strings.ToLower(res.Stderr)
	if strings.Contains(lower, "non-fast-forward") || strings.Contains(lower, "fetch first") ||
		strings.Contains(lower, "stale info") {
		return PushNonFastForward, ErrNonFastForward
	}
	return PushFailed, err
}

// LogOptions configures Log, per spec §4.1.
type LogOptions struct {
	Limit            int
	IncludeFiles     bool
	IncludeMergeDiff bool
	FirstParent      bool
	Reverse          bool
}

// Log returns the commits in revRange (e.g. "from..to"), reverse
// chronological unless Reverse is set, per spec §4.1. For merges, parents
// are listed in git-native order (first parent first) -- this falls out of
// %P directly, with no reordering.
func (r *Repo) Log(ctx context.Context, revRange string, opts LogOptions) ([]revision.Change, error) {
	args := []string{"log", "--format=" + logFormat}
	if opts.FirstParent {
		args = append(args, "--first-parent")
	}
	if opts.IncludeMergeDiff {
		args = append(args, "-m")
	}
	if opts.Limit > 0 {
		args = append(args, "-n", strconv.Itoa(opts.Limit))
	}
	if opts.Reverse {
		args = append(args, "--reverse")
	}
	args = append(args, "--name-only", revRange)

	res, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseLogOutput(res.Stdout)
}

// ResolveReference resolves ref (branch, tag, remote-tracking ref,
// HEAD[~N], or a sha1 prefix) to a Revision. It fails with
// ErrCannotResolveRevision when git exits non-zero or the object named is
// not a commit.
func (r *Repo) ResolveReference(ctx context.Context, ref string) (revision.Revision, error) {
	res, err := r.run(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return revision.Revision{}, fmt.Errorf("%w: %s: %v", ErrCannotResolveRevision, ref, err)
	}
	sha := strings.TrimSpace(res.Stdout)
	return revision.Revision{SHA1: sha, Ref: ref}, nil
}

// RefExists reports whether name (a full ref like refs/heads/main) exists.
func (r *Repo) RefExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", name)
	return err == nil
}

// Add stages paths (or everything, if all is true and paths is empty).
func (r *Repo) Add(ctx context.Context, paths []string, all bool) error {
	args := []string{"add"}
	if all {
		args = append(args, "-A")
	}
	args = append(args, paths...)
	_, err := r.run(ctx, args...)
	return err
}

// CommitOptions configures Commit.
type CommitOptions struct {
	Author      revision.Author
	Timestamp   time.Time
	Message     string
	Amend       bool
	AllowEmpty  bool
}

// Commit creates a commit in the work tree with the given author,
// timestamp and message, per spec §4.3(f): "author = origin author ...,
// timestamp = origin's timestamp".
func (r *Repo) Commit(ctx context.Context, opts CommitOptions) (revision.Revision, error) {
	args := []string{"commit", "-q", "--no-verify", "-m", opts.Message}
	if opts.Amend {
		args = append(args, "--amend")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	extraEnv := []string{
		"GIT_AUTHOR_NAME=" + opts.Author.Name,
		"GIT_AUTHOR_EMAIL=" + opts.Author.Email,
		"GIT_COMMITTER_NAME=" + opts.Author.Name,
		"GIT_COMMITTER_EMAIL=" + opts.Author.Email,
	}
	if !opts.Timestamp.IsZero() {
		ts := opts.Timestamp.Format(time.RFC3339)
		extraEnv = append(extraEnv, "GIT_AUTHOR_DATE="+ts, "GIT_COMMITTER_DATE="+ts)
	}

	full := append(r.baseArgs(), args...)
	res, err := run(ctx, r.Log, "", r.env(extraEnv...), full...)
	if err := classifyRunErr(r.GitDir, res.Stderr, err); err != nil {
		return revision.Revision{}, err
	}

	return r.ResolveReference(ctx, "HEAD")
}

// Branch creates name, optionally starting from starting (defaults to
// HEAD). Per spec §6, git >= 2.22 supports this without a checkout.
func (r *Repo) Branch(ctx context.Context, name, starting string) error {
	args := []string{"branch", "--force", name}
	if starting != "" {
		args = append(args, starting)
	}
	_, err := r.run(ctx, args...)
	return err
}

// ForceCheckout checks out ref into the work tree, discarding local
// modifications.
func (r *Repo) ForceCheckout(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", "--force", ref)
	return err
}

// MergeFFPolicy controls Merge's fast-forward behavior.
type MergeFFPolicy int

const (
	FF MergeFFPolicy = iota
	FFOnly
	NoFF
)

// Merge merges heads into the currently checked-out branch.
func (r *Repo) Merge(ctx context.Context, heads []string, ffPolicy MergeFFPolicy, strategy string) error {
	args := []string{"merge", "-q"}
	switch ffPolicy {
	case FFOnly:
		args = append(args, "--ff-only")
	case NoFF:
		args = append(args, "--no-ff")
	}
	if strategy != "" {
		args = append(args, "--strategy", strategy)
	}
	args = append(args, heads...)
	_, err := r.run(ctx, args...)
	return err
}

// Rebase rebases branch onto upstream. A conflict surfaces as
// KindRebaseConflict, per spec §4.2/§4.3.
func (r *Repo) Rebase(ctx context.Context, branch, upstream string) error {
	_, err := r.run(ctx, "rebase", upstream, branch)
	return err
}

// CherryPick cherry-picks the given commit ranges onto the currently
// checked-out branch.
func (r *Repo) CherryPick(ctx context.Context, ranges []string) error {
	args := append([]string{"cherry-pick", "-x"}, ranges...)
	_, err := r.run(ctx, args...)
	return err
}

// SimpleCommand is an escape hatch for git subcommands this façade has no
// dedicated method for (e.g. `git gc`, `git fsck`), still going through
// the sanitized environment and error classification.
func (r *Repo) SimpleCommand(ctx context.Context, args ...string) (string, error) {
	res, err := r.run(ctx, args...)
	return res.Stdout, err
}

// UpdateRef sets ref name directly to target, bypassing merge/checkout
// machinery; used by the mirror engine for scripted refspec actions.
func (r *Repo) UpdateRef(ctx context.Context, name, target string) error {
	_, err := r.run(ctx, "update-ref", name, target)
	return err
}

// CredentialFill resolves stored credentials for url via `git credential
// fill`, per spec §4.1 and §6 (the credentials-helper store path is passed
// through git config).
func (r *Repo) CredentialFill(ctx context.Context, url string) (username, password string, err error) {
	full := append(r.baseArgs(), "credential", "fill")
	input := "url=" + url + "\n\n"
	res, err := runWithStdin(ctx, r.Log, r.env(), input, full...)
	if err != nil {
		return "", "", classifyRunErr(url, res.Stderr, err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if v, ok := strings.CutPrefix(line, "username="); ok {
			username = v
		}
		if v, ok := strings.CutPrefix(line, "password="); ok {
			password = v
		}
	}
	return username, password, nil
}

// MergeBase returns the best common ancestor of a and b.
func (r *Repo) MergeBase(ctx context.Context, a, b string) (string, error) {
	res, err := r.run(ctx, "merge-base", a, b)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// DiffTree returns the unified diff between two commit-ish trees, suitable
// for ApplyPatch; used by the integrate resolver's INCLUDE_FILES strategy
// (spec §4.4) to lift a feature branch's tree changes into the current
// commit without merging its history.
func (r *Repo) DiffTree(ctx context.Context, a, b string) (string, error) {
	res, err := r.run(ctx, "diff", "--binary", a, b)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// ApplyPatch applies a unified diff (as produced by DiffTree) to the index
// and work tree.
func (r *Repo) ApplyPatch(ctx context.Context, patch string) error {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	full := append(r.baseArgs(), "apply", "--index", "--3way")
	res, err := runWithStdin(ctx, r.Log, r.env(), patch, full...)
	return classifyRunErr(r.GitDir, res.Stderr, err)
}

// CommitTree creates a commit object directly from treeish with the given
// parents, bypassing the index and work tree entirely, and returns its
// sha1. Used by the integrate resolver's FAKE_MERGE strategy (spec §4.4),
// which needs a merge commit whose tree does not include the referenced
// branch's content.
func (r *Repo) CommitTree(ctx context.Context, treeish string, parents []string, message string, author revision.Author, timestamp time.Time) (revision.Revision, error) {
	args := []string{"commit-tree", treeish}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)

	extraEnv := []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_COMMITTER_NAME=" + author.Name,
		"GIT_COMMITTER_EMAIL=" + author.Email,
	}
	if !timestamp.IsZero() {
		ts := timestamp.Format(time.RFC3339)
		extraEnv = append(extraEnv, "GIT_AUTHOR_DATE="+ts, "GIT_COMMITTER_DATE="+ts)
	}

	full := append(r.baseArgs(), args...)
	res, err := run(ctx, r.Log, "", r.env(extraEnv...), full...)
	if err := classifyRunErr(r.GitDir, res.Stderr, err); err != nil {
		return revision.Revision{}, err
	}
	return revision.Revision{SHA1: strings.TrimSpace(res.Stdout)}, nil
}

// TreeOf returns the tree sha1 a commit-ish points to.
func (r *Repo) TreeOf(ctx context.Context, commitish string) (string, error) {
	res, err := r.run(ctx, "rev-parse", commitish+"^{tree}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}
