package gitrepo

import (
	"context"
	"errors"
	"strings"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
)

// classifyRunErr turns a raw `git` subprocess failure into the taxonomy
// from spec §4.1: CannotResolveRevision, RebaseConflict, ValidationException
// (user-caused: bad ref, bad config) or RepoException (anything else git
// exited non-zero for, non-classifiable further).
func classifyRunErr(ref string, stderr string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return copybaraerror.Newf(copybaraerror.KindTransient, ref, "git command timed out: %w", err)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "conflict") && (strings.Contains(lower, "rebase") || strings.Contains(lower, "cherry-pick")):
		return copybaraerror.Newf(copybaraerror.KindRebaseConflict, ref, "%s", stderr).
			WithRemediation("resolve conflicts in the work tree or abort the rebase/cherry-pick")
	case strings.Contains(lower, "unknown revision") || strings.Contains(lower, "bad revision") ||
		strings.Contains(lower, "ambiguous argument") || strings.Contains(lower, "not a valid object name"):
		return copybaraerror.Newf(copybaraerror.KindValidation, ref, "cannot resolve revision: %s", stderr)
	case strings.Contains(lower, "could not resolve host") || strings.Contains(lower, "could not read from remote") ||
		strings.Contains(lower, "connection timed out") || strings.Contains(lower, "temporary failure"):
		return copybaraerror.Newf(copybaraerror.KindTransient, ref, "%s", stderr)
	case strings.Contains(lower, "authentication failed") || strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "could not read username") || strings.Contains(lower, "repository not found"):
		return copybaraerror.Newf(copybaraerror.KindValidation, ref, "%s", stderr).
			WithRemediation("check credentials for this remote")
	case strings.Contains(lower, "invalid refspec"):
		return copybaraerror.Newf(copybaraerror.KindValidation, ref, "%s", stderr)
	default:
		return copybaraerror.Newf(copybaraerror.KindRepo, ref, "%w", err)
	}
}

// ErrCannotResolveRevision is returned by ResolveReference when git exits
// non-zero or the resolved object is not a commit.
var ErrCannotResolveRevision = copybaraerror.Newf(copybaraerror.KindValidation, "", "cannot resolve revision")

// ErrNonFastForward signals that push(...) was rejected because local
// history is behind the remote, distinct from every other push failure
// (PushFailed), per spec §4.1.
var ErrNonFastForward = copybaraerror.Newf(copybaraerror.KindRepo, "", "non-fast-forward push rejected")
