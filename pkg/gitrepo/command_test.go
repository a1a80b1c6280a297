package gitrepo

import (
	"os"
	"strings"
	"testing"
)

func TestSanitizedEnv_WhitelistsExpectedVars(t *testing.T) {
	os.Setenv("GIT_TEST_SENTINEL", "1")
	os.Setenv("SSH_TEST_SENTINEL", "1")
	os.Setenv("COPYBARA_SHOULD_NOT_LEAK", "1")
	defer os.Unsetenv("GIT_TEST_SENTINEL")
	defer os.Unsetenv("SSH_TEST_SENTINEL")
	defer os.Unsetenv("COPYBARA_SHOULD_NOT_LEAK")

	env := SanitizedEnv()

	var sawGit, sawSSH, sawLeak bool
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "GIT_TEST_SENTINEL="):
			sawGit = true
		case strings.HasPrefix(kv, "SSH_TEST_SENTINEL="):
			sawSSH = true
		case strings.HasPrefix(kv, "COPYBARA_SHOULD_NOT_LEAK="):
			sawLeak = true
		}
	}

	if !sawGit {
		t.Error("expected GIT_* prefixed var to pass through")
	}
	if !sawSSH {
		t.Error("expected SSH_* prefixed var to pass through")
	}
	if sawLeak {
		t.Error("expected non-whitelisted var to be stripped")
	}
}

func TestSanitizedEnv_AppendsExtra(t *testing.T) {
	env := SanitizedEnv("GIT_AUTHOR_NAME=Ada")
	found := false
	for _, kv := range env {
		if kv == "GIT_AUTHOR_NAME=Ada" {
			found = true
		}
	}
	if !found {
		t.Error("expected extra env var to be present")
	}
}
