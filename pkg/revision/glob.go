package revision

import (
	"path"
	"strings"
)

// Glob filters relative paths by include/exclude pattern lists. Patterns
// use the usual shell-ish glob syntax (`*`, `?`, `[...]`) per path segment,
// plus `**` to match any number of path segments (including zero).
//
// Glob matching is called out in spec §1 as "an assumed primitive", so this
// package implements it directly against path/filepath-style segment
// matching rather than importing a third-party glob engine: no example in
// the retrieval pack ships one, and the semantics spec §3/§4.2 need (the
// ALL_FILES/empty-glob special cases, P3) are a handful of lines on top of
// stdlib path matching.
type Glob struct {
	Include []string
	Exclude []string
}

// ALLFILES is the glob that includes every path. Per spec §3 this is the
// one glob for which commits with an empty changed-file set are still
// included by the origin reader (the "legacy" behavior in P3).
var ALLFILES = Glob{Include: []string{"**"}}

// Empty is the glob that includes nothing, per spec §3's core guarantee.
var Empty = Glob{}

// IsAllFiles reports whether g is exactly the ALLFILES glob (by pattern
// list, not by pointer identity, since Glob is a plain value type).
func (g Glob) IsAllFiles() bool {
	return len(g.Include) == 1 && g.Include[0] == "**" && len(g.Exclude) == 0
}

// IsEmpty reports whether g has no include patterns at all, in which case
// it can match nothing regardless of excludes.
func (g Glob) IsEmpty() bool {
	return len(g.Include) == 0
}

// Matches reports whether relPath is included by g: it must match at least
// one include pattern and no exclude pattern.
func (g Glob) Matches(relPath string) bool {
	if g.IsEmpty() {
		return false
	}
	relPath = path.Clean(relPath)
	if !matchesAny(g.Include, relPath) {
		return false
	}
	return !matchesAny(g.Exclude, relPath)
}

// MatchesAny reports whether any path in paths is included by g.
func (g Glob) MatchesAny(paths []string) bool {
	for _, p := range paths {
		if g.Matches(p) {
			return true
		}
	}
	return false
}

func matchesAny(patterns []string, relPath string) bool {
	for _, pat := range patterns {
		if matchPattern(pat, relPath) {
			return true
		}
	}
	return false
}

// matchPattern matches a single '/'-separated glob pattern against path,
// with '**' matching zero or more whole segments and '*'/'?'/'[...]'
// matching within a single segment via path.Match.
func matchPattern(pattern, relPath string) bool {
	patSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(relPath, "/")
	return matchSegments(patSegs, pathSegs)
}

func matchSegments(pat, p []string) bool {
	if len(pat) == 0 {
		return len(p) == 0
	}

	if pat[0] == "**" {
		// '**' matches zero or more segments: try consuming 0..len(p).
		for i := 0; i <= len(p); i++ {
			if matchSegments(pat[1:], p[i:]) {
				return true
			}
		}
		return false
	}

	if len(p) == 0 {
		return false
	}

	ok, err := path.Match(pat[0], p[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], p[1:])
}
