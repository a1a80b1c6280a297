package mirror

import "testing"

func TestRefspecCovered_ExactMatch(t *testing.T) {
	if !refspecCovered([]string{"refs/heads/main"}, "refs/heads/main") {
		t.Error("expected exact ref to be covered")
	}
}

func TestRefspecCovered_WildcardSuffix(t *testing.T) {
	declared := []string{"refs/heads/*:refs/heads/*"}
	if !refspecCovered(declared, "refs/heads/feature:refs/heads/feature") {
		t.Error("expected wildcard-covered refspec to match")
	}
	if refspecCovered(declared, "refs/tags/v1:refs/tags/v1") {
		t.Error("expected refs/tags/* to be rejected by a refs/heads/* pattern")
	}
}

func TestRefspecCovered_PlainPatternCoversSrcOnlyCandidate(t *testing.T) {
	declared := []string{"refs/heads/*"}
	if !refspecCovered(declared, "refs/heads/main") {
		t.Error("expected plain declared pattern to cover a same-shaped candidate")
	}
}

func TestRefspecCovered_RejectsUncoveredDestination(t *testing.T) {
	declared := []string{"refs/heads/main:refs/heads/main"}
	if refspecCovered(declared, "refs/heads/main:refs/heads/other") {
		t.Error("expected mismatched destination side to be rejected")
	}
}

func TestResult_SuccessAndError(t *testing.T) {
	if err := Success().Err; err != nil {
		t.Errorf("Success() should carry no error, got %v", err)
	}
	r := Error("bad thing: %s", "reason")
	if r.Err == nil || r.Err.Error() != "bad thing: reason" {
		t.Errorf("Error() = %v, want formatted message", r.Err)
	}
}
