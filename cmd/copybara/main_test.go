package main

import (
	"errors"
	"testing"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
)

func TestExitCodeFor_MapsEachKind(t *testing.T) {
	cases := map[error]int{
		copybaraerror.New(copybaraerror.KindValidation, "", errors.New("x")):      1,
		copybaraerror.New(copybaraerror.KindRedundantChange, "", errors.New("x")): 1,
		copybaraerror.New(copybaraerror.KindRepo, "", errors.New("x")):            2,
		copybaraerror.New(copybaraerror.KindRebaseConflict, "", errors.New("x")):  2,
		copybaraerror.New(copybaraerror.KindTransient, "", errors.New("x")):       3,
		copybaraerror.New(copybaraerror.KindInternal, "", errors.New("x")):        4,
		errors.New("unclassified"):                                               4,
	}
	for err, want := range cases {
		if got := exitCodeFor(err); got != want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestResolveSourceRef_FallsBackToOriginRef(t *testing.T) {
	if got := resolveSourceRef([]string{"copybara.yaml"}, "main"); got != "main" {
		t.Errorf("resolveSourceRef = %q, want fallback %q", got, "main")
	}
}

func TestResolveSourceRef_PicksTrailingPositionalArg(t *testing.T) {
	args := []string{"copybara.yaml", "my-workflow", "feature/thing"}
	if got := resolveSourceRef(args, "main"); got != "feature/thing" {
		t.Errorf("resolveSourceRef = %q, want %q", got, "feature/thing")
	}
}
