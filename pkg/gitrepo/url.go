package gitrepo

import (
	"fmt"
	"regexp"
	"strings"
)

// The repository name can contain ASCII letters, digits, and the
// characters ., -, and _.
var (
	// user@host.xz:path/to/repo.git
	scpURLRgx = regexp.MustCompile(`^(?P<user>[\w\-\.]+)@(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)?):(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// ssh://user@host.xz[:port]/path/to/repo.git
	sshURLRgx = regexp.MustCompile(`^ssh://(?P<user>[\w\-\.]+)@(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)??)/(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// https://host.xz[:port]/path/to/repo.git
	httpsURLRgx = regexp.MustCompile(`^https://(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)?)/(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)

	// file:///path/to/repo.git
	fileURLRgx = regexp.MustCompile(`^file:///(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)
)

// URLScheme distinguishes how a RepoURL was written so the plumbing layer
// knows which credential mechanism and which "Folder"-style local
// shortcuts apply (spec §9: origin/destination variants are Git, Gerrit,
// GitHub, GitLab or a local folder).
type URLScheme int

const (
	SchemeSCP URLScheme = iota
	SchemeSSH
	SchemeHTTPS
	SchemeFile
	// SchemeFolder is a bare local filesystem path with no git:// framing
	// at all -- the "Folder" origin/destination variant from spec §9.
	// cmd/copybara still opens it through the bare-repo cache like any
	// other URL.
	SchemeFolder
)

func (s URLScheme) String() string {
	switch s {
	case SchemeSCP:
		return "scp"
	case SchemeSSH:
		return "ssh"
	case SchemeHTTPS:
		return "https"
	case SchemeFile:
		return "file"
	case SchemeFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// RepoURL is a parsed remote URL, used both to key the bare-repo cache and
// to decide which credential mechanism (SSH key, HTTPS credential helper,
// none) a fetch/push needs.
type RepoURL struct {
	Scheme URLScheme
	User   string // empty for https, file and folder URLs
	Host   string // host or host:port; empty for file and folder URLs
	Path   string // path to the repo (the "org"/"group" portion)
	Repo   string // repository name, includes .git if the URL had it
	Raw    string // the normalised raw URL this was parsed from
}

// Normalise lower-cases, trims whitespace, and strips a trailing slash so
// equivalent URLs written differently still hash to the same cache key.
func Normalise(rawURL string) string {
	n := strings.ToLower(strings.TrimSpace(rawURL))
	return strings.TrimRight(n, "/")
}

// ParseURL parses rawURL into a RepoURL. A path with no recognized git
// scheme at all is treated as SchemeFolder (a local directory origin or
// destination), never as an error -- copybara's Folder variant is exactly
// "not actually a git remote".
func ParseURL(rawURL string) (*RepoURL, error) {
	norm := Normalise(rawURL)

	switch {
	case scpURLRgx.MatchString(norm):
		m := scpURLRgx.FindStringSubmatch(norm)
		return finishParse(&RepoURL{Scheme: SchemeSCP,
			User: m[scpURLRgx.SubexpIndex("user")],
			Host: m[scpURLRgx.SubexpIndex("host")],
			Path: m[scpURLRgx.SubexpIndex("path")],
			Repo: m[scpURLRgx.SubexpIndex("repo")],
			Raw:  norm})
	case sshURLRgx.MatchString(norm):
		m := sshURLRgx.FindStringSubmatch(norm)
		return finishParse(&RepoURL{Scheme: SchemeSSH,
			User: m[sshURLRgx.SubexpIndex("user")],
			Host: m[sshURLRgx.SubexpIndex("host")],
			Path: m[sshURLRgx.SubexpIndex("path")],
			Repo: m[sshURLRgx.SubexpIndex("repo")],
			Raw:  norm})
	case httpsURLRgx.MatchString(norm):
		m := httpsURLRgx.FindStringSubmatch(norm)
		return finishParse(&RepoURL{Scheme: SchemeHTTPS,
			Host: m[httpsURLRgx.SubexpIndex("host")],
			Path: m[httpsURLRgx.SubexpIndex("path")],
			Repo: m[httpsURLRgx.SubexpIndex("repo")],
			Raw:  norm})
	case fileURLRgx.MatchString(norm):
		m := fileURLRgx.FindStringSubmatch(norm)
		return finishParse(&RepoURL{Scheme: SchemeFile,
			Path: m[fileURLRgx.SubexpIndex("path")],
			Repo: m[fileURLRgx.SubexpIndex("repo")],
			Raw:  norm})
	case strings.HasPrefix(norm, "/") || strings.HasPrefix(norm, "."):
		return &RepoURL{Scheme: SchemeFolder, Path: norm, Repo: lastPathElement(norm), Raw: norm}, nil
	default:
		return nil, fmt.Errorf(
			"url %q is not a recognized git remote (scp, ssh://, https:// or file:// expected) nor an absolute/relative folder path", rawURL)
	}
}

func lastPathElement(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

func finishParse(u *RepoURL) (*RepoURL, error) {
	// scp path doesn't have a leading "/"; trim for consistency across
	// schemes.
	u.Path = strings.Trim(u.Path, "/")

	if u.Path == "" {
		return nil, fmt.Errorf("repo path (org/group) cannot be empty in %q", u.Raw)
	}
	if u.Repo == "" || u.Repo == ".git" {
		return nil, fmt.Errorf("repo name is invalid in %q", u.Raw)
	}
	return u, nil
}

// Equal reports whether two parsed URLs name the same remote repository.
// A ".git" suffix is ignored, since the same repo is commonly referenced
// both with and without it.
func (u *RepoURL) Equal(other *RepoURL) bool {
	return u.Host == other.Host &&
		u.Path == other.Path &&
		strings.TrimSuffix(u.Repo, ".git") == strings.TrimSuffix(other.Repo, ".git")
}

// CacheKey returns the string the bare-repo cache uses to identify the
// local clone of this remote. It intentionally collapses scheme
// differences (ssh vs scp vs https) so the same physical repo, addressed
// two different ways in two different workflows within one invocation,
// shares one cache entry.
func (u *RepoURL) CacheKey() string {
	repo := strings.TrimSuffix(u.Repo, ".git")
	return u.Host + "/" + u.Path + "/" + repo
}
