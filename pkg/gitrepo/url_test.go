package gitrepo

import "testing"

func TestParseURL_Schemes(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		scheme URLScheme
		host   string
		path   string
		repo   string
	}{
		{"scp", "git@github.com:copybara-oss/copybara.git", SchemeSCP, "github.com", "copybara-oss", "copybara.git"},
		{"ssh", "ssh://git@github.com/copybara-oss/copybara.git", SchemeSSH, "github.com", "copybara-oss", "copybara.git"},
		{"https", "https://github.com/copybara-oss/copybara.git", SchemeHTTPS, "github.com", "copybara-oss", "copybara.git"},
		{"file", "file:///srv/repos/copybara.git", SchemeFile, "", "srv/repos", "copybara.git"},
		{"folder-abs", "/srv/checkouts/myrepo", SchemeFolder, "", "/srv/checkouts/myrepo", "myrepo"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := ParseURL(tc.url)
			if err != nil {
				t.Fatalf("ParseURL(%q): %v", tc.url, err)
			}
			if u.Scheme != tc.scheme {
				t.Errorf("scheme = %v, want %v", u.Scheme, tc.scheme)
			}
			if tc.scheme != SchemeFolder {
				if u.Host != tc.host {
					t.Errorf("host = %q, want %q", u.Host, tc.host)
				}
				if u.Path != tc.path {
					t.Errorf("path = %q, want %q", u.Path, tc.path)
				}
			}
			if u.Repo != tc.repo {
				t.Errorf("repo = %q, want %q", u.Repo, tc.repo)
			}
		})
	}
}

func TestParseURL_RejectsUnrecognized(t *testing.T) {
	if _, err := ParseURL("not a url at all"); err == nil {
		t.Fatal("expected error for unrecognized URL, got nil")
	}
}

func TestCacheKey_CollapsesSchemeAndGitSuffix(t *testing.T) {
	a, err := ParseURL("git@github.com:copybara-oss/copybara.git")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseURL("https://github.com/copybara-oss/copybara")
	if err != nil {
		t.Fatal(err)
	}
	if a.CacheKey() != b.CacheKey() {
		t.Errorf("cache keys differ: %q vs %q", a.CacheKey(), b.CacheKey())
	}
	if !a.Equal(b) {
		t.Errorf("expected %+v to Equal %+v", a, b)
	}
}

func TestParseURL_RejectsEmptyRepoName(t *testing.T) {
	if _, err := ParseURL("https://github.com/copybara-oss/.git"); err == nil {
		t.Fatal("expected error for empty repo name")
	}
}
