// Package mirror implements spec §4.6's scriptable mirror engine: a named,
// linear sequence of actions, each a closure given a MirrorContext scoped to
// the job's declared refspecs. It is built directly on pkg/gitrepo's
// plumbing façade rather than re-deriving git invocations of its own.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/hostapi"
)

// Console is the minimal surface an action can print progress to.
type Console interface {
	Printf(format string, args ...any)
}

// Result is what an action returns: Success() or Error(...).
type Result struct {
	Err error
}

// Success reports that an action completed normally.
func Success() Result { return Result{} }

// Error reports that an action failed with a formatted message.
func Error(format string, args ...any) Result {
	return Result{Err: fmt.Errorf(format, args...)}
}

// Action is one step of a mirror Job.
type Action func(mc *MirrorContext) Result

// NamedAction pairs an Action with a label used in error messages and logs.
type NamedAction struct {
	Name string
	Run  Action
}

// Job is a named, linear sequence of actions plus the refspecs it is
// declared to touch (spec §4.6 invariant (a)).
type Job struct {
	Name     string
	Refspecs []string
	Actions  []NamedAction
}

// MirrorContext is the capability surface handed to every action.
type MirrorContext struct {
	ctx context.Context

	origin         *gitrepo.Repo
	originURL      string
	destination    *gitrepo.Repo
	destinationURL string

	refspecs []string
	force    bool

	originAPI      hostapi.ReviewRequester
	destinationAPI hostapi.ReviewRequester
	console        Console
	log            *slog.Logger
}

// OriginFetch fetches refspecs from the origin remote.
func (mc *MirrorContext) OriginFetch(refspecs []string) ([]string, error) {
	if err := mc.checkCovered(refspecs); err != nil {
		return nil, err
	}
	return mc.origin.Fetch(mc.ctx, mc.originURL, refspecs, gitrepo.FetchOptions{})
}

// DestinationFetch fetches refspecs from the destination remote.
func (mc *MirrorContext) DestinationFetch(refspecs []string) ([]string, error) {
	if err := mc.checkCovered(refspecs); err != nil {
		return nil, err
	}
	return mc.destination.Fetch(mc.ctx, mc.destinationURL, refspecs, gitrepo.FetchOptions{})
}

// DestinationPush pushes refspecs to the destination remote.
func (mc *MirrorContext) DestinationPush(refspecs []string, pushOptions []string) (gitrepo.PushStatus, error) {
	if err := mc.checkCovered(refspecs); err != nil {
		return gitrepo.PushFailed, err
	}
	return mc.destination.Push(mc.ctx, mc.destinationURL, refspecs, mc.force, pushOptions)
}

// CreateBranch creates name in the destination repo, starting from
// startingPoint (HEAD if empty).
func (mc *MirrorContext) CreateBranch(name, startingPoint string) error {
	if err := mc.checkRefCovered(name); err != nil {
		return err
	}
	return mc.destination.Branch(mc.ctx, name, startingPoint)
}

// References lists destination refs matching pattern (a `for-each-ref`
// pattern, "" meaning all refs) as a map of ref name to sha1.
func (mc *MirrorContext) References(pattern string) (map[string]string, error) {
	args := []string{"for-each-ref", "--format=%(refname) %(objectname)"}
	if pattern != "" {
		args = append(args, pattern)
	}
	out, err := mc.destination.SimpleCommand(mc.ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	refs := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		refs[fields[0]] = fields[1]
	}
	return refs, nil
}

// Merge merges commits into branch (which must already be checked out in
// the destination work tree) under ffPolicy.
func (mc *MirrorContext) Merge(branch string, commits []string, ffPolicy gitrepo.MergeFFPolicy) error {
	if err := mc.checkRefCovered(branch); err != nil {
		return err
	}
	return mc.destination.Merge(mc.ctx, commits, ffPolicy, "")
}

// Rebase rebases branch onto upstream.
func (mc *MirrorContext) Rebase(branch, upstream string) error {
	if err := mc.checkRefCovered(branch); err != nil {
		return err
	}
	return mc.destination.Rebase(mc.ctx, branch, upstream)
}

// CherryPick cherry-picks ranges onto branch. Per spec §4.6 invariant (c),
// each picked commit carries a "(cherry picked from commit <sha>)" footer --
// gitrepo.Repo.CherryPick always passes `-x`, which git itself appends that
// footer for.
func (mc *MirrorContext) CherryPick(branch string, ranges []string) error {
	if err := mc.checkRefCovered(branch); err != nil {
		return err
	}
	return mc.destination.CherryPick(mc.ctx, ranges)
}

// OriginAPI exposes the origin host's review API, if configured.
func (mc *MirrorContext) OriginAPI() hostapi.ReviewRequester { return mc.originAPI }

// DestinationAPI exposes the destination host's review API, if configured.
func (mc *MirrorContext) DestinationAPI() hostapi.ReviewRequester { return mc.destinationAPI }

// ConsoleOut exposes the progress console.
func (mc *MirrorContext) ConsoleOut() Console { return mc.console }

// checkCovered enforces invariant (a) for a src[:dst] refspec list.
func (mc *MirrorContext) checkCovered(refspecs []string) error {
	for _, rs := range refspecs {
		if !refspecCovered(mc.refspecs, rs) {
			return copybaraerror.Newf(copybaraerror.KindValidation, rs, "refspec %q is not covered by this mirror's declared refspecs", rs)
		}
	}
	return nil
}

// checkRefCovered enforces invariant (a) for a single plain ref name.
func (mc *MirrorContext) checkRefCovered(ref string) error {
	return mc.checkCovered([]string{ref})
}

// refspecCovered reports whether candidate (a plain ref or a "src:dst"
// refspec) is contained by one of declared's patterns. A trailing "*" in a
// declared pattern's side matches any suffix on that side.
func refspecCovered(declared []string, candidate string) bool {
	for _, d := range declared {
		if refspecMatches(d, candidate) {
			return true
		}
	}
	return false
}

func refspecMatches(pattern, candidate string) bool {
	pSrc, pDst, pHasDst := strings.Cut(pattern, ":")
	cSrc, cDst, cHasDst := strings.Cut(candidate, ":")

	if !sideCovered(pSrc, cSrc) {
		return false
	}
	if !pHasDst {
		return true
	}
	if !cHasDst {
		return sideCovered(pDst, cSrc)
	}
	return sideCovered(pDst, cDst)
}

func sideCovered(pattern, ref string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(ref, prefix)
	}
	return pattern == ref
}
