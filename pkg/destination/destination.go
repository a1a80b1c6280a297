// Package destination implements the Destination writer (spec §4.3): takes
// a TransformResult and publishes it as one or more commits on a push ref,
// returning DestinationEffect records.
package destination

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/label"
	"github.com/copybara-oss/copybara/pkg/revision"
)

// EffectType classifies the outcome of a write, per spec §4.3.
type EffectType int

const (
	Created EffectType = iota
	Updated
	Noop
	Error
)

func (t EffectType) String() string {
	switch t {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Noop:
		return "NOOP"
	default:
		return "ERROR"
	}
}

// Effect is one entry of write's result: what happened, and the
// destination-side reference it produced (commit sha, PR/MR number, Gerrit
// review id).
type Effect struct {
	Type           EffectType
	DestinationRef string
	Err            error
}

// Integrator resolves integrate labels found in a TransformResult's labels
// onto the staged work tree before it is committed (spec §4.4). The
// destination writer depends on this narrow interface, not pkg/integrate
// directly, so integrate strategies can change independently of the write
// algorithm that invokes them.
type Integrator interface {
	Integrate(ctx context.Context, workdir string, labels *label.Multimap) error
}

// Console is the ask-for-confirmation surface (spec §4.3).
type Console interface {
	ShowDiff(diff string)
	Confirm(prompt string) bool
}

// Config parameterizes a GitDestination.
type Config struct {
	// FetchRef is the ref to fetch and check out before writing (e.g.
	// "refs/heads/main").
	FetchRef string
	// PushRef is the ref write() pushes to. Defaults to FetchRef.
	PushRef string
	// Glob scopes which destination paths a write may touch.
	Glob revision.Glob
	// OriginLabel is the label name appended to every commit message
	// (e.g. "GitOrigin-RevId"), recording the origin revision migrated.
	OriginLabel string
	// Committer is not used by Write: commits record the TransformResult's
	// author as both author and committer.
	Committer revision.Author
	// AllowEmptyDiff permits an empty staged diff to still produce a NOOP
	// effect instead of failing with a RedundantChange error.
	AllowEmptyDiff bool
	AskForConfirmation bool
	DryRun              bool
	// Force inits FetchRef when it doesn't exist yet instead of failing.
	Force bool
	// LocalRepoPath switches to skip-push/local-repo mode: the commit is
	// force-pushed to PushRef in the repo at this path instead of the
	// configured remote.
	LocalRepoPath string
	// PushOptions is forwarded as one --push-option per entry on the final
	// push (spec §6's --git-push-option flag).
	PushOptions []string

	Integrator Integrator
	Console    Console
}

// GitDestination is the git-backed Destination writer.
type GitDestination struct {
	repo *gitrepo.Repo
	url  string
	cfg  Config
	log  *slog.Logger
}

// New returns a GitDestination writing to repo (the cached bare mirror of
// url).
func New(repo *gitrepo.Repo, url string, cfg Config, log *slog.Logger) *GitDestination {
	if cfg.PushRef == "" {
		cfg.PushRef = cfg.FetchRef
	}
	if log == nil {
		log = slog.Default()
	}
	return &GitDestination{repo: repo, url: url, cfg: cfg, log: log}
}

// GetDestinationStatus implements spec §4.3's getDestinationStatus: the
// baseline sha1 is the labelName value found on the newest commit on the
// push ref whose body contains "labelName: <value>" for any value, and the
// commits newer than that one are reported as pending.
func (d *GitDestination) GetDestinationStatus(ctx context.Context, labelName string) (revision.DestinationStatus, error) {
	head, err := d.repo.ResolveReference(ctx, d.cfg.PushRef)
	if err != nil {
		return revision.DestinationStatus{}, nil // no push ref yet: no baseline
	}

	var status revision.DestinationStatus
	var pending []revision.Revision
	err = visitUntilLabel(ctx, d.repo, head, labelName, func(c revision.Change, baselineValue string) {
		if baselineValue != "" {
			status.BaselineSHA1 = baselineValue
			return
		}
		pending = append(pending, c.Revision)
	})
	if err != nil {
		return revision.DestinationStatus{}, err
	}
	status.PendingChanges = pending
	return status, nil
}

// visitUntilLabel walks back from head calling cb(change, value) for each
// commit; value is non-empty exactly once, for the first (newest) commit
// carrying labelName, after which the walk stops.
func visitUntilLabel(ctx context.Context, repo *gitrepo.Repo, head revision.Revision, labelName string, cb func(c revision.Change, baselineValue string)) error {
	cursor := head.SHA1
	const pageSize = 200
	for {
		batch, err := repo.Log(ctx, cursor, gitrepo.LogOptions{IncludeFiles: false, Limit: pageSize})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, c := range batch {
			if v, ok := c.Labels().Get(labelName); ok {
				cb(c, v)
				return nil
			}
			cb(c, "")
		}
		if len(batch) < pageSize {
			return nil
		}
		last := batch[len(batch)-1]
		if len(last.Parents) == 0 {
			return nil
		}
		cursor = last.Parents[0].SHA1
	}
}

// Write implements spec §4.3's write algorithm (a)-(g).
func (d *GitDestination) Write(ctx context.Context, tr revision.TransformResult) ([]Effect, error) {
	if err := d.ensureFetchRef(ctx); err != nil {
		return []Effect{{Type: Error, Err: err}}, err
	}

	workdir, err := os.MkdirTemp("", "copybara-destination-*")
	if err != nil {
		return nil, fmt.Errorf("creating destination work tree: %w", err)
	}
	defer os.RemoveAll(workdir)

	wt := d.repo.At(workdir)
	checkoutRef := d.cfg.FetchRef
	if tr.Baseline != "" {
		checkoutRef = tr.Baseline
	}
	if err := wt.ForceCheckout(ctx, checkoutRef); err != nil {
		return nil, fmt.Errorf("checking out %s: %w", checkoutRef, err)
	}

	if err := copyGlobScoped(tr.WorkDir, workdir, d.cfg.Glob); err != nil {
		return nil, fmt.Errorf("copying transform result into destination tree: %w", err)
	}

	if d.cfg.Integrator != nil {
		if err := d.cfg.Integrator.Integrate(ctx, workdir, tr.Labels); err != nil {
			return nil, fmt.Errorf("resolving integrate labels: %w", err)
		}
	}

	if err := wt.Add(ctx, nil, true); err != nil {
		return nil, fmt.Errorf("staging destination tree: %w", err)
	}

	empty, err := d.diffIsEmpty(ctx, wt)
	if err != nil {
		return nil, err
	}
	if empty {
		if !d.cfg.AllowEmptyDiff && tr.Baseline == "" {
			return []Effect{{Type: Error}}, copybaraerror.ErrEmptyChange
		}
		d.log.Info("staged diff is empty, recording a noop", "revision", tr.CurrentRevision.SHA1)
		return []Effect{{Type: Noop}}, nil
	}

	msg := tr.Summary
	if d.cfg.OriginLabel != "" && tr.SetRevID {
		msg = appendOriginLabels(msg, d.cfg.OriginLabel, tr)
	}

	var timestamp time.Time
	if tr.CurrentRevision.Timestamp != nil {
		timestamp = *tr.CurrentRevision.Timestamp
	}
	commit, err := wt.Commit(ctx, gitrepo.CommitOptions{
		Author:    tr.Author,
		Timestamp: timestamp,
		Message:   msg,
	})
	if err != nil {
		return nil, fmt.Errorf("committing destination change: %w", err)
	}

	if tr.Baseline != "" {
		commit, err = d.rebaseOntoPushRef(ctx, wt, commit)
		if err != nil {
			return nil, err
		}
	}

	if d.cfg.AskForConfirmation && d.cfg.Console != nil {
		diff, _ := wt.SimpleCommand(ctx, "show", commit.SHA1)
		d.cfg.Console.ShowDiff(diff)
		if !d.cfg.Console.Confirm(fmt.Sprintf("push %s to %s?", commit.SHA1, d.cfg.PushRef)) {
			return nil, copybaraerror.Newf(copybaraerror.KindValidation, commit.SHA1, "user aborted before push").
				WithRemediation("re-run and confirm, or adjust the change")
		}
	}

	if d.cfg.DryRun {
		return []Effect{{Type: Created, DestinationRef: commit.SHA1}}, nil
	}

	if d.cfg.LocalRepoPath != "" {
		if err := d.landInLocalRepo(ctx, wt, commit); err != nil {
			return nil, err
		}
		return []Effect{{Type: Created, DestinationRef: commit.SHA1}}, nil
	}

	refspec := commit.SHA1 + ":" + d.cfg.PushRef
	status, err := wt.Push(ctx, d.url, []string{refspec}, false, d.cfg.PushOptions)
	if err != nil {
		return []Effect{{Type: Error, Err: err}}, err
	}
	if status != gitrepo.PushOK {
		return []Effect{{Type: Error, Err: gitrepo.ErrNonFastForward}}, gitrepo.ErrNonFastForward
	}

	return []Effect{{Type: Created, DestinationRef: commit.SHA1}}, nil
}

// appendOriginLabels appends one labelName occurrence per change folded
// into tr, in order, so a commit that stands in for several origin
// changes (an ITERATIVE noop carry, or a SQUASH) preserves every folded
// change's identity rather than just the newest one (spec §8 E2E scenario
// 2). The last occurrence appended is always tr.CurrentRevision's, which
// is what GetDestinationStatus's "last occurrence wins" lookup expects as
// the new baseline.
func appendOriginLabels(msg, labelName string, tr revision.TransformResult) string {
	changes := tr.Changes
	if len(changes) == 0 && tr.CurrentRevision.SHA1 != "" {
		changes = []revision.Change{{Revision: tr.CurrentRevision}}
	}
	for _, c := range changes {
		if c.Revision.SHA1 == "" {
			continue
		}
		msg = label.Append(msg, labelName, c.Revision.SHA1)
	}
	return msg
}

func (d *GitDestination) ensureFetchRef(ctx context.Context) error {
	_, err := d.repo.ResolveReference(ctx, d.cfg.FetchRef)
	if err == nil {
		_, ferr := d.repo.Fetch(ctx, d.url, []string{d.cfg.FetchRef + ":" + d.cfg.FetchRef}, gitrepo.FetchOptions{})
		return ferr
	}
	if !d.cfg.Force {
		return fmt.Errorf("destination ref %s not found and --force not set: %w", d.cfg.FetchRef, err)
	}
	return d.repo.Init(ctx, true)
}

func (d *GitDestination) diffIsEmpty(ctx context.Context, wt *gitrepo.Repo) (bool, error) {
	_, err := wt.SimpleCommand(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return true, nil
	}
	if copybaraerror.KindOf(err) == copybaraerror.KindRepo {
		return false, nil // exit 1: non-empty diff, not a failure
	}
	return false, err
}

// rebaseOntoPushRef implements spec §4.3's baseline-rebase step for
// CHANGE_REQUEST: the commit already built on top of the baseline is
// rebased onto the current push ref tip. A conflict surfaces as
// KindRebaseConflict via gitrepo's error classification.
func (d *GitDestination) rebaseOntoPushRef(ctx context.Context, wt *gitrepo.Repo, commit revision.Revision) (revision.Revision, error) {
	branch := "copybara/change-request"
	if err := wt.Branch(ctx, branch, commit.SHA1); err != nil {
		return revision.Revision{}, fmt.Errorf("branching for baseline rebase: %w", err)
	}
	if err := wt.ForceCheckout(ctx, branch); err != nil {
		return revision.Revision{}, fmt.Errorf("checking out rebase branch: %w", err)
	}
	if err := wt.Rebase(ctx, branch, d.cfg.PushRef); err != nil {
		return revision.Revision{}, fmt.Errorf("rebasing onto %s: %w", d.cfg.PushRef, err)
	}
	return wt.ResolveReference(ctx, branch)
}

// landInLocalRepo implements spec §4.3's skip-push/local-repo mode: the
// commit is pushed into a plain local repo path instead of the configured
// remote, for a subsequent explicit push from outside to deliver.
func (d *GitDestination) landInLocalRepo(ctx context.Context, wt *gitrepo.Repo, commit revision.Revision) error {
	_, err := wt.Push(ctx, d.cfg.LocalRepoPath, []string{commit.SHA1 + ":" + d.cfg.PushRef}, true, nil)
	return err
}

// copyGlobScoped copies srcRoot's contents into dstRoot, per spec §4.3(c):
// it never descends into .git, and it first removes any glob-included
// destination path that no longer exists in the source (so deletions in the
// transform result are reflected, not just additions). A non-empty glob
// limits the copy to the paths it includes; an empty glob (no include
// patterns) copies every source file and removes no destination file.
func copyGlobScoped(srcRoot, dstRoot string, glob revision.Glob) error {
	srcFiles := make(map[string]bool)
	if srcRoot != "" {
		if err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(srcRoot, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			srcFiles[rel] = true
			return nil
		}); err != nil {
			return fmt.Errorf("walking transform result: %w", err)
		}
	}

	if err := filepath.WalkDir(dstRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dstRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if glob.Matches(rel) && !srcFiles[rel] {
			return os.Remove(path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("pruning stale destination files: %w", err)
	}

	for rel := range srcFiles {
		if !glob.IsAllFiles() && !glob.IsEmpty() && !glob.Matches(rel) {
			continue
		}
		src := filepath.Join(srcRoot, filepath.FromSlash(rel))
		dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copying %s: %w", rel, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
