// Package copybaraerror classifies engine failures into the kinds spec'd
// for the migration engine: validation, repo, transient, redundant-change
// and rebase-conflict. Components wrap the underlying cause with fmt.Errorf
// and %w as the teacher does everywhere; this package only adds the
// mechanical classification on top so callers can branch on Kind with
// errors.As instead of string-matching messages.
package copybaraerror

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, per spec §7.
type Kind int

const (
	// KindValidation covers bad config, invalid refs, user abort, malformed
	// labels, and empty changes dropped because of a glob. Always aborts
	// the workflow and is never retried.
	KindValidation Kind = iota
	// KindRepo covers git process failures, rebase conflicts (also see
	// KindRebaseConflict), and non-fast-forward pushes. Aborts unless
	// --force is set.
	KindRepo
	// KindTransient covers network errors, rate limits, and 5xx hosting-API
	// responses. Retried with bounded exponential backoff.
	KindTransient
	// KindRedundantChange is a subtype of KindValidation: the computed diff
	// is empty relative to the destination baseline. May be downgraded to
	// a NOOP effect instead of aborting.
	KindRedundantChange
	// KindRebaseConflict is always fatal; it is never auto-resolved.
	KindRebaseConflict
	// KindInternal covers everything else: engine bugs, invariant
	// violations, unexpected nil values.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRepo:
		return "repo"
	case KindTransient:
		return "transient"
	case KindRedundantChange:
		return "redundant_change"
	case KindRebaseConflict:
		return "rebase_conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the engine's classified error. Ref is the repo URL, revision, or
// path that the error concerns; Remediation is an optional deterministic
// suggestion surfaced to the user.
type Error struct {
	Kind        Kind
	Ref         string
	Remediation string
	Cause       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Cause)
	if e.Ref != "" {
		msg = fmt.Sprintf("%s (ref: %s)", msg, e.Ref)
	}
	if e.Remediation != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Remediation)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as a classified Error.
func New(kind Kind, ref string, cause error) *Error {
	return &Error{Kind: kind, Ref: ref, Cause: cause}
}

// Newf wraps a freshly formatted cause.
func Newf(kind Kind, ref string, format string, args ...any) *Error {
	return &Error{Kind: kind, Ref: ref, Cause: fmt.Errorf(format, args...)}
}

// WithRemediation returns a copy of e with a remediation hint attached.
func (e *Error) WithRemediation(hint string) *Error {
	cp := *e
	cp.Remediation = hint
	return &cp
}

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, ErrRebaseConflict) matches any error of that Kind. Direct
// Kind comparison should normally go through KindOf.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to KindInternal for unclassified errors so callers always get a kind to
// branch on.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether err should be retried with backoff, per §7:
// only KindTransient is retried.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Fatal reports whether err should abort the workflow unconditionally,
// ignoring --force. Only KindRebaseConflict is always fatal.
func Fatal(err error) bool {
	return KindOf(err) == KindRebaseConflict
}

// sentinel, matched via errors.Is(err, ErrRebaseConflict) etc. by callers
// that only care about kind, not the ref/cause.
var (
	ErrRebaseConflict = &Error{Kind: KindRebaseConflict, Cause: errors.New("rebase conflict")}
	ErrEmptyChange    = &Error{Kind: KindRedundantChange, Cause: errors.New("empty change")}
)
