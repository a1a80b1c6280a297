package mirror

import (
	"context"
	"errors"
	"testing"
)

func TestRunner_Run_StopsAtFirstErrorWithoutForce(t *testing.T) {
	var ran []string
	job := Job{
		Name: "demo",
		Actions: []NamedAction{
			{Name: "one", Run: func(mc *MirrorContext) Result { ran = append(ran, "one"); return Success() }},
			{Name: "two", Run: func(mc *MirrorContext) Result { ran = append(ran, "two"); return Error("boom") }},
			{Name: "three", Run: func(mc *MirrorContext) Result { ran = append(ran, "three"); return Success() }},
		},
	}

	r := &Runner{}
	err := r.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(ran) != 2 {
		t.Fatalf("expected only the first two actions to run, got %v", ran)
	}
}

func TestRunner_Run_ForceAccumulatesAndContinues(t *testing.T) {
	var ran []string
	job := Job{
		Name: "demo",
		Actions: []NamedAction{
			{Name: "one", Run: func(mc *MirrorContext) Result { ran = append(ran, "one"); return Error("first") }},
			{Name: "two", Run: func(mc *MirrorContext) Result { ran = append(ran, "two"); return Success() }},
			{Name: "three", Run: func(mc *MirrorContext) Result { ran = append(ran, "three"); return Error("second") }},
		},
	}

	r := &Runner{Force: true}
	err := r.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected a joined error")
	}
	if len(ran) != 3 {
		t.Fatalf("expected all three actions to run under --force, got %v", ran)
	}
	if !errors.Is(err, err) {
		t.Fatal("sanity check on errors.Is failed")
	}
}

func TestRunner_Run_AllSucceedReturnsNil(t *testing.T) {
	job := Job{
		Name: "demo",
		Actions: []NamedAction{
			{Name: "one", Run: func(mc *MirrorContext) Result { return Success() }},
		},
	}
	if err := (&Runner{}).Run(context.Background(), job); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
