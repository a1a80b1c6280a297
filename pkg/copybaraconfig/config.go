// Package copybaraconfig loads the invocation-level YAML config a
// `copybara migrate` run is parameterized by: which workflow to run,
// where the origin/destination repos live, the glob scoping files to
// that workflow, integrate-label bindings, cache location, and
// credentials paths. It is deliberately not the starlark-like config
// language that defines workflow/origin/destination objects -- that
// layer is out of scope (spec §1) -- only the binary's own bootstrap
// config, in the same shape and spirit as the teacher's
// RepoPoolConfig/DefaultConfig.
package copybaraconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/copybara-oss/copybara/pkg/integrate"
	"github.com/copybara-oss/copybara/pkg/retry"
	"github.com/copybara-oss/copybara/pkg/revision"
	"github.com/copybara-oss/copybara/pkg/workflow"
)

const (
	defaultCacheRoot        = "/var/cache/copybara"
	defaultSSHKeyPath       = "/etc/copybara-secret/ssh"
	defaultSSHKnownHosts    = "/etc/copybara-secret/known_hosts"
	defaultRetryMaxAttempts = 5
)

// AuthConfig names the SSH credentials copybara should present to both
// remotes, mirroring the teacher's Auth struct.
type AuthConfig struct {
	SSHKeyPath        string `yaml:"ssh_key_path"`
	SSHKnownHostsPath string `yaml:"ssh_known_hosts_path"`
}

// RemoteConfig is one side (origin or destination) of a migration.
type RemoteConfig struct {
	URL string `yaml:"url"`
	Ref string `yaml:"ref"`
}

// GlobConfig is the YAML shape of a revision.Glob.
type GlobConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

func (g GlobConfig) toGlob() revision.Glob {
	if len(g.Include) == 0 {
		return revision.ALLFILES
	}
	return revision.Glob{Include: g.Include, Exclude: g.Exclude}
}

// IntegrateConfig is one label-to-strategy binding, per spec §4.4.
type IntegrateConfig struct {
	Label        string `yaml:"label"`
	Strategy     string `yaml:"strategy"` // FAKE_MERGE | INCLUDE_FILES | FAKE_MERGE_AND_INCLUDE_FILES
	IgnoreErrors bool   `yaml:"ignore_errors"`
}

func (i IntegrateConfig) toBinding() (integrate.Binding, error) {
	var strat integrate.Strategy
	switch i.Strategy {
	case "", "FAKE_MERGE":
		strat = integrate.FakeMerge
	case "INCLUDE_FILES":
		strat = integrate.IncludeFiles
	case "FAKE_MERGE_AND_INCLUDE_FILES":
		strat = integrate.FakeMergeAndIncludeFiles
	default:
		return integrate.Binding{}, fmt.Errorf("unknown integrate strategy %q", i.Strategy)
	}
	return integrate.Binding{LabelName: i.Label, Strategy: strat, IgnoreErrors: i.IgnoreErrors}, nil
}

// RetryConfig is the YAML shape of a retry.Policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

func (r RetryConfig) toPolicy() retry.Policy {
	p := retry.DefaultPolicy
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		p.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = r.MaxDelay
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	return p
}

// Config is the top-level invocation config, one YAML document per
// workflow definition.
type Config struct {
	Workflow    string            `yaml:"workflow"`
	Mode        string            `yaml:"mode"` // SQUASH | ITERATIVE | CHANGE_REQUEST
	CacheRoot   string            `yaml:"cache_root"`
	Auth        AuthConfig        `yaml:"auth"`
	Origin      RemoteConfig      `yaml:"origin"`
	Destination RemoteConfig      `yaml:"destination"`
	Glob        GlobConfig        `yaml:"glob"`
	Integrate   []IntegrateConfig `yaml:"integrate"`
	Retry       RetryConfig       `yaml:"retry"`

	BaselineLabel      string `yaml:"baseline_label"`
	MigrateNoopChanges bool   `yaml:"migrate_noop_changes"`

	// MetricsPushgatewayURL, if set, is pushed per-run counters/latency
	// after a migrate invocation finishes (see pkg/metrics); a one-shot
	// batch job has nothing for Prometheus to scrape, so push is the fit.
	MetricsPushgatewayURL string `yaml:"metrics_pushgateway_url"`
}

// mode maps Config.Mode to workflow.Mode, defaulting to SQUASH.
func (c *Config) mode() workflow.Mode {
	switch c.Mode {
	case "ITERATIVE":
		return workflow.Iterative
	case "CHANGE_REQUEST":
		return workflow.ChangeRequest
	default:
		return workflow.Squash
	}
}

// GlobValue returns the configured file scope, defaulting to ALLFILES.
func (c *Config) GlobValue() revision.Glob { return c.Glob.toGlob() }

// IntegrateBindings converts every configured integrate entry into a
// pkg/integrate Binding, failing on the first unrecognized strategy.
func (c *Config) IntegrateBindings() ([]integrate.Binding, error) {
	bindings := make([]integrate.Binding, 0, len(c.Integrate))
	for _, i := range c.Integrate {
		b, err := i.toBinding()
		if err != nil {
			return nil, fmt.Errorf("integrate config for label %q: %w", i.Label, err)
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// RetryPolicy returns the configured retry policy, defaulting to
// retry.DefaultPolicy.
func (c *Config) RetryPolicy() retry.Policy { return c.Retry.toPolicy() }

// WorkflowMode exposes the resolved workflow.Mode for callers outside this package.
func (c *Config) WorkflowMode() workflow.Mode { return c.mode() }

// applyDefaults fills zero-valued fields the way the teacher's
// applyGitDefaults does for RepoPoolConfig.
func (c *Config) applyDefaults() {
	if c.CacheRoot == "" {
		c.CacheRoot = defaultCacheRoot
	}
	if c.Auth.SSHKeyPath == "" {
		c.Auth.SSHKeyPath = defaultSSHKeyPath
	}
	if c.Auth.SSHKnownHostsPath == "" {
		c.Auth.SSHKnownHostsPath = defaultSSHKnownHosts
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
}

// Validate checks the fields this package can't express through types
// alone (required URLs, absolute cache root), per spec §7 KindValidation.
func (c *Config) Validate() error {
	var errs []error
	if c.Origin.URL == "" {
		errs = append(errs, fmt.Errorf("origin.url is required"))
	}
	if c.Destination.URL == "" {
		errs = append(errs, fmt.Errorf("destination.url is required"))
	}
	if c.CacheRoot != "" && !filepath.IsAbs(c.CacheRoot) {
		errs = append(errs, fmt.Errorf("cache_root %q must be absolute", c.CacheRoot))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// allowedTopLevelKeys etc. are computed once from Config's own yaml tags,
// so MetricsPushgatewayURL above is automatically a recognized key.
var (
	allowedTopLevelKeys = allowedKeys(Config{})
	allowedAuthKeys     = allowedKeys(AuthConfig{})
	allowedOriginKeys   = allowedKeys(RemoteConfig{})
	allowedGlobKeys     = allowedKeys(GlobConfig{})
	allowedIntegrateKey = allowedKeys(IntegrateConfig{})
	allowedRetryKeys    = allowedKeys(RetryConfig{})
)

// allowedKeys retrieves the yaml tag of every exported field of config,
// mirroring the teacher's getAllowedKeys.
func allowedKeys(config interface{}) []string {
	var keys []string
	val := reflect.TypeOf(config)
	for i := 0; i < val.NumField(); i++ {
		if tag := val.Field(i).Tag.Get("yaml"); tag != "" {
			keys = append(keys, tag)
		}
	}
	return keys
}

func findUnexpectedKey(raw map[string]interface{}, allowed []string) string {
	for key := range raw {
		if !slices.Contains(allowed, key) {
			return key
		}
	}
	return ""
}

// validateYAML rejects unrecognized keys before Unmarshal, the same
// belt-and-braces the teacher applies in validateConfigYaml -- a typo'd
// key (e.g. "cach_root") silently parsing to a zero-valued field is
// exactly the class of config bug this catches early.
func validateYAML(data []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if key := findUnexpectedKey(raw, allowedTopLevelKeys); key != "" {
		return fmt.Errorf("unexpected key: .%s", key)
	}

	if authMap, ok := raw["auth"].(map[string]interface{}); ok {
		if key := findUnexpectedKey(authMap, allowedAuthKeys); key != "" {
			return fmt.Errorf("unexpected key: .auth.%s", key)
		}
	}
	for _, side := range []string{"origin", "destination"} {
		if m, ok := raw[side].(map[string]interface{}); ok {
			if key := findUnexpectedKey(m, allowedOriginKeys); key != "" {
				return fmt.Errorf("unexpected key: .%s.%s", side, key)
			}
		}
	}
	if globMap, ok := raw["glob"].(map[string]interface{}); ok {
		if key := findUnexpectedKey(globMap, allowedGlobKeys); key != "" {
			return fmt.Errorf("unexpected key: .glob.%s", key)
		}
	}
	if retryMap, ok := raw["retry"].(map[string]interface{}); ok {
		if key := findUnexpectedKey(retryMap, allowedRetryKeys); key != "" {
			return fmt.Errorf("unexpected key: .retry.%s", key)
		}
	}
	if integrateList, ok := raw["integrate"].([]interface{}); ok {
		for i, entry := range integrateList {
			m, ok := entry.(map[string]interface{})
			if !ok {
				return fmt.Errorf(".integrate[%d] is not valid", i)
			}
			if key := findUnexpectedKey(m, allowedIntegrateKey); key != "" {
				return fmt.Errorf("unexpected key: .integrate[%d].%s", i, key)
			}
		}
	}

	return nil
}

// Load reads, validates, and parses the config at path, applying
// defaults before returning.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := validateYAML(data); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
