package copybaraconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/copybara-oss/copybara/pkg/integrate"
	"github.com/copybara-oss/copybara/pkg/workflow"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copybara.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
origin:
  url: git@example.com:org/origin.git
destination:
  url: git@example.com:org/destination.git
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheRoot != defaultCacheRoot {
		t.Errorf("CacheRoot = %q, want default %q", cfg.CacheRoot, defaultCacheRoot)
	}
	if cfg.Retry.MaxAttempts != defaultRetryMaxAttempts {
		t.Errorf("Retry.MaxAttempts = %d, want %d", cfg.Retry.MaxAttempts, defaultRetryMaxAttempts)
	}
	if cfg.WorkflowMode() != workflow.Squash {
		t.Errorf("mode = %v, want SQUASH default", cfg.WorkflowMode())
	}
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `
origin:
  url: x
  refspec: oops
destination:
  url: y
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoad_RejectsMissingRemotes(t *testing.T) {
	path := writeConfig(t, `
cache_root: /tmp/cache
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected missing origin/destination to fail validation")
	}
}

func TestLoad_RejectsRelativeCacheRoot(t *testing.T) {
	path := writeConfig(t, `
origin:
  url: x
destination:
  url: y
cache_root: relative/path
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected relative cache_root to fail validation")
	}
}

func TestIntegrateBindings_ConvertsStrategies(t *testing.T) {
	cfg := &Config{Integrate: []IntegrateConfig{
		{Label: "COPYBARA_INTEGRATE_REVIEW", Strategy: "INCLUDE_FILES"},
	}}
	bindings, err := cfg.IntegrateBindings()
	if err != nil {
		t.Fatalf("IntegrateBindings: %v", err)
	}
	want := []integrate.Binding{
		{LabelName: "COPYBARA_INTEGRATE_REVIEW", Strategy: integrate.IncludeFiles},
	}
	if diff := cmp.Diff(want, bindings); diff != "" {
		t.Errorf("IntegrateBindings() mismatch (-want +got):\n%s", diff)
	}
}

func TestIntegrateBindings_RejectsUnknownStrategy(t *testing.T) {
	cfg := &Config{Integrate: []IntegrateConfig{{Label: "X", Strategy: "BOGUS"}}}
	if _, err := cfg.IntegrateBindings(); err == nil {
		t.Fatal("expected unknown strategy to fail")
	}
}

func TestGlobValue_DefaultsToAllFiles(t *testing.T) {
	cfg := &Config{}
	g := cfg.GlobValue()
	if !g.IsAllFiles() {
		t.Errorf("expected ALLFILES default, got %+v", g)
	}
}
