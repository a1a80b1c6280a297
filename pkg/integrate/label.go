// Package integrate implements the integrate-label resolver from spec
// §4.4: parsing COPYBARA_INTEGRATE_REVIEW-style label values and folding
// the referenced revision into the current commit via one of three
// strategies.
//
// Label values are free-form, provider-specific, single-line grammars
// ("<url> <ref>", a GitHub PR URL plus "from user:branch sha", or a Gerrit
// "gerrit <host> <change#> Patch Set <n> [<changeId>]" line) with enough
// internal nesting -- an optional trailing bracketed change-id, a
// colon-joined user:branch pair inside a larger token -- that this package
// uses purpleclay/chomp the way purpleclay-gitz/diff.go does: a short
// hand-written combinator chain per line shape, threading the remainder
// string through chomp.Tag/Until/While(IsDigit) calls, with stdlib string
// ops for the scalar leftovers (mirroring diff.go's own mix of chomp and
// strconv.Atoi/strings.Join).
package integrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/purpleclay/chomp"
)

// Provider distinguishes which label grammar a Reference was parsed from.
type Provider int

const (
	ProviderGeneric Provider = iota
	ProviderGitHub
	ProviderGerrit
)

func (p Provider) String() string {
	switch p {
	case ProviderGitHub:
		return "github"
	case ProviderGerrit:
		return "gerrit"
	default:
		return "generic"
	}
}

// Reference is one parsed integrate-label value: the revision to fold in,
// plus whatever provider-specific detail the merge-message templates need.
type Reference struct {
	Provider Provider
	Raw      string

	// URL is the remote to fetch Ref from. For ProviderGerrit this is the
	// Gerrit host instead.
	URL string
	Ref string // ref or sha1 to integrate

	// GitHub-specific.
	Org, Repo        string
	Number           int
	FromUser, FromBranch string

	// Gerrit-specific.
	PatchSet int
	ChangeID string
}

// ParseLabelValue parses one integrate-label value into a Reference,
// dispatching on its provider-specific shape.
func ParseLabelValue(value string) (Reference, error) {
	trimmed := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(trimmed, "gerrit "):
		return parseGerrit(trimmed)
	case strings.Contains(trimmed, "/pull/"):
		return parseGitHub(trimmed)
	default:
		return parseGeneric(trimmed)
	}
}

// parseGeneric handles "<url> <ref>", the COPYBARA_INTEGRATE_REVIEW
// default shape.
func parseGeneric(value string) (Reference, error) {
	rem, url, err := chomp.Until(" ")(value)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing integrate label %q: %w", value, err)
	}
	rem, _, err = chomp.Tag(" ")(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing integrate label %q: missing ref: %w", value, err)
	}

	ref := strings.TrimSpace(rem)
	if url == "" || ref == "" {
		return Reference{}, fmt.Errorf("malformed integrate label %q: want \"<url> <ref>\"", value)
	}
	return Reference{Provider: ProviderGeneric, Raw: value, URL: url, Ref: ref}, nil
}

// parseGitHub handles
// "https://github.com/<org>/<repo>/pull/<N> from <user>:<branch> <sha>".
func parseGitHub(value string) (Reference, error) {
	rem, prURL, err := chomp.Until(" from ")(value)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing github integrate label %q: %w", value, err)
	}
	rem, _, err = chomp.Tag(" from ")(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing github integrate label %q: missing \" from \": %w", value, err)
	}
	rem, userBranch, err := chomp.Until(" ")(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing github integrate label %q: missing user:branch: %w", value, err)
	}
	rem, _, err = chomp.Tag(" ")(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing github integrate label %q: missing sha: %w", value, err)
	}
	sha := strings.TrimSpace(rem)

	org, repo, number, err := parsePullURL(prURL)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing github integrate label %q: %w", value, err)
	}

	user, branch, ok := strings.Cut(userBranch, ":")
	if !ok {
		return Reference{}, fmt.Errorf("parsing github integrate label %q: expected user:branch, got %q", value, userBranch)
	}

	return Reference{
		Provider: ProviderGitHub, Raw: value,
		URL: prURL, Ref: sha,
		Org: org, Repo: repo, Number: number,
		FromUser: user, FromBranch: branch,
	}, nil
}

func parsePullURL(u string) (org, repo string, number int, err error) {
	rem, _, err := chomp.Tag("https://github.com/")(u)
	if err != nil {
		return "", "", 0, err
	}
	rem, org, err = chomp.Until("/")(rem)
	if err != nil {
		return "", "", 0, err
	}
	rem, _, err = chomp.Tag("/")(rem)
	if err != nil {
		return "", "", 0, err
	}
	rem, repo, err = chomp.Until("/pull/")(rem)
	if err != nil {
		return "", "", 0, err
	}
	rem, _, err = chomp.Tag("/pull/")(rem)
	if err != nil {
		return "", "", 0, err
	}
	_, numStr, err := chomp.While(chomp.IsDigit)(rem)
	if err != nil {
		return "", "", 0, err
	}
	n, convErr := strconv.Atoi(numStr)
	if convErr != nil {
		return "", "", 0, fmt.Errorf("invalid pull request number in %q: %w", u, convErr)
	}
	return org, repo, n, nil
}

// parseGerrit handles "gerrit <host> <change#> Patch Set <n> [<changeId>]",
// the trailing bracketed change-id being optional.
func parseGerrit(value string) (Reference, error) {
	rem, _, err := chomp.Tag("gerrit ")(value)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing gerrit integrate label %q: %w", value, err)
	}
	rem, host, err := chomp.Until(" ")(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing gerrit integrate label %q: missing host: %w", value, err)
	}
	rem, _, err = chomp.Tag(" ")(rem)
	if err != nil {
		return Reference{}, err
	}
	rem, numStr, err := chomp.While(chomp.IsDigit)(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing gerrit integrate label %q: missing change number: %w", value, err)
	}
	num, convErr := strconv.Atoi(numStr)
	if convErr != nil {
		return Reference{}, fmt.Errorf("invalid gerrit change number in %q: %w", value, convErr)
	}

	rem, _, err = chomp.Tag(" Patch Set ")(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing gerrit integrate label %q: missing \"Patch Set\": %w", value, err)
	}
	rem, psStr, err := chomp.While(chomp.IsDigit)(rem)
	if err != nil {
		return Reference{}, fmt.Errorf("parsing gerrit integrate label %q: missing patch set number: %w", value, err)
	}
	ps, convErr := strconv.Atoi(psStr)
	if convErr != nil {
		return Reference{}, fmt.Errorf("invalid gerrit patch set number in %q: %w", value, convErr)
	}

	changeID := ""
	rest := strings.TrimSpace(rem)
	if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
		changeID = strings.TrimSuffix(strings.TrimPrefix(rest, "["), "]")
	}

	return Reference{
		Provider: ProviderGerrit, Raw: value,
		URL: host, Number: num, PatchSet: ps, ChangeID: changeID,
	}, nil
}
