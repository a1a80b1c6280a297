// Package revision holds the immutable data model shared by every other
// engine package: Revision, Change, Glob, WriterContext, TransformResult
// and DestinationStatus, per spec §3.
package revision

import (
	"time"

	"github.com/copybara-oss/copybara/pkg/label"
)

// Author is a commit author or committer identity.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	if a.Email == "" {
		return a.Name
	}
	return a.Name + " <" + a.Email + ">"
}

// Revision is an opaque, immutable pointer to a single commit in an origin
// repository. Two revisions are equal iff their SHA1 is equal; URL, Ref,
// Timestamp and Author are descriptive metadata carried alongside the SHA1,
// not part of its identity.
type Revision struct {
	SHA1 string
	// URL the revision was resolved from.
	URL string
	// Ref is the human-named ref (branch, tag, HEAD~3, ...) that resolved
	// to this SHA1, if the revision was produced by resolving one.
	Ref string
	// Timestamp of the commit, if known without a further lookup.
	Timestamp *time.Time
	Author    *Author
	// Labels parsed out of the commit this revision points to, if the
	// producer of this Revision set them; GitOrigin leaves it nil and
	// exposes labels through Change.Labels() instead.
	Labels *label.Multimap
}

// Equal reports whether two revisions identify the same commit. Per spec
// §3 this is the *only* criterion for revision equality.
func (r Revision) Equal(other Revision) bool {
	return r.SHA1 == other.SHA1
}

// IsZero reports whether r carries no SHA1 at all (the zero value).
func (r Revision) IsZero() bool {
	return r.SHA1 == ""
}

func (r Revision) String() string {
	if r.Ref != "" {
		return r.Ref + "(" + r.SHA1 + ")"
	}
	return r.SHA1
}

// Change is a single commit as enumerated by an origin reader: its
// revision, parents, identities, message, changed files, and whether it is
// a merge. Labels are derived lazily from the message body.
type Change struct {
	Revision       Revision
	Parents        []Revision
	Author         Author
	Committer      Author
	ZonedTimestamp time.Time
	// Message is the full commit message body (summary + body + any
	// trailing label block).
	Message string
	Files   []string
	IsMerge bool

	labels *label.Multimap
}

// FirstLineMessage returns the first line of Message (the commit summary).
func (c *Change) FirstLineMessage() string {
	for i, r := range c.Message {
		if r == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// Labels lazily parses and caches the label multimap out of the final
// trailing label block in Message, per spec §3: "Labels are derived lazily
// by parsing the message-body ... duplicates are preserved in order."
func (c *Change) Labels() *label.Multimap {
	if c.labels == nil {
		c.labels = label.Parse(c.Message)
	}
	return c.labels
}

// WriterContext carries the information a workflow run hands to a
// destination writer once per run, per spec §3.
type WriterContext struct {
	WorkflowName         string
	WorkflowIdentityUser string
	DryRun               bool
	// OriginContextRevision is the origin-side revision this run migrates
	// to (the "current" revision the executor resolved).
	OriginContextRevision Revision
	// Roots are the root path prefixes of interest to the destination's
	// glob, used to scope what gets copied into the destination work tree.
	Roots []string
}

// TransformResult is what the (external) transform pipeline hands back to
// the destination writer: a materialized work tree plus the metadata
// needed to commit it, per spec §3.
type TransformResult struct {
	WorkDir           string
	CurrentRevision   Revision
	RequestedRevision Revision
	Author            Author
	Summary           string
	// Baseline is the destination commit sha1 this result should be staged
	// on top of, if the workflow is doing a baseline rebase (CHANGE_REQUEST
	// mode). Empty means "no explicit baseline".
	Baseline string
	Labels   *label.Multimap
	// Changes is the list of origin changes folded into this result: every
	// change in the range for SQUASH; for ITERATIVE the current change,
	// preceded by any earlier empty-diff changes carried into it; exactly
	// one for CHANGE_REQUEST.
	Changes []Change
	// SetRevID indicates whether the destination writer should append the
	// origin-label trailer at all; false is used by a small number of
	// transform-only dry runs that never touch the destination label.
	SetRevID bool
	// RawSourceRef is the original ref string the user or workflow supplied
	// to select this migration, kept for diagnostics.
	RawSourceRef string
}

// DestinationStatus reports what the destination already has migrated, per
// spec §3: the baseline commit and any pending (not-yet-migrated) changes
// known relative to it.
type DestinationStatus struct {
	// BaselineSHA1 is the origin SHA1 recorded in the most recent commit on
	// the destination's push ref that carries the configured origin label.
	BaselineSHA1 string
	// PendingChanges are the destination commits on the push ref that are
	// newer than the commit carrying BaselineSHA1 (commits without the
	// origin label), newest first.
	PendingChanges []Revision
}
