// Package hostapi declares the capability surface a hosting provider
// (GitHub, GitLab, Gerrit) must offer for the destination writer's PR/MR
// and review-layering logic (spec §4.3 "Pull/merge-request writers"). It
// intentionally has no concrete client implementation: wiring a real REST
// client is out of scope (spec Non-goals), but the interfaces document
// exactly what such a client would need to satisfy, and let
// pkg/destination's PR/MR writers be written and tested against a fake.
package hostapi

import "context"

// PullRequest is the subset of a GitHub/GitLab PR/MR this engine cares
// about: enough to report a DestinationEffect and to decide whether an
// existing PR should be updated instead of a new one opened.
type PullRequest struct {
	Number int
	URL    string
	State  string // "open", "closed", "merged"
}

// ReviewRequester is the capability surface for GitHub/GitLab-style
// pull/merge requests, per spec §4.3.
type ReviewRequester interface {
	// FindOpenPullRequest returns the open PR/MR with head branch, if any.
	FindOpenPullRequest(ctx context.Context, owner, repo, branch string) (*PullRequest, error)
	// CreatePullRequest opens a new PR/MR from branch onto base.
	CreatePullRequest(ctx context.Context, owner, repo, branch, base, title, body string) (*PullRequest, error)
	// UpdatePullRequest updates an existing PR/MR's title/body (the branch
	// itself was already force-pushed by the destination writer).
	UpdatePullRequest(ctx context.Context, owner, repo string, number int, title, body string) (*PullRequest, error)
	// DeleteBranch removes a feature branch, used when policy says stale
	// branches should be cleaned up after merge.
	DeleteBranch(ctx context.Context, owner, repo, branch string) error
}

// GerritChange is the subset of a Gerrit change this engine cares about.
type GerritChange struct {
	ChangeID string
	Number   int
	Status   string // "NEW", "MERGED", "ABANDONED"
}

// GerritReviewer is the capability surface for Gerrit changes, per
// spec §4.3/§4.4 (FAKE_MERGE strategies land on top of an existing Gerrit
// change rather than opening a new one).
type GerritReviewer interface {
	// FindChange looks up an existing change by its Change-Id trailer.
	FindChange(ctx context.Context, project, changeID string) (*GerritChange, error)
	// PostReviewPatchSet uploads sha1 as a new patch set of changeID.
	PostReviewPatchSet(ctx context.Context, project, changeID, sha1 string) (*GerritChange, error)
	// SetTopic sets a change's topic (spec §6's --gerrit-topic flag).
	SetTopic(ctx context.Context, project, changeID, topic string) error
}
