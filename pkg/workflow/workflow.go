// Package workflow implements the three migration modes from spec §4.5
// (SQUASH, ITERATIVE, CHANGE_REQUEST) on top of the shared Origin/
// Destination contracts: compute the range (lastRev, currentRev], obtain
// an ordered list of candidate changes, run each through the (external)
// transform pipeline, and hand the result to the writer.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/copybara-oss/copybara/pkg/copybaraerror"
	"github.com/copybara-oss/copybara/pkg/destination"
	"github.com/copybara-oss/copybara/pkg/label"
	"github.com/copybara-oss/copybara/pkg/origin"
	"github.com/copybara-oss/copybara/pkg/retry"
	"github.com/copybara-oss/copybara/pkg/revision"
)

// Mode selects which of the three executor shapes Run follows.
type Mode int

const (
	Squash Mode = iota
	Iterative
	ChangeRequest
)

func (m Mode) String() string {
	switch m {
	case Iterative:
		return "ITERATIVE"
	case ChangeRequest:
		return "CHANGE_REQUEST"
	default:
		return "SQUASH"
	}
}

// TransformFunc is the hook an (external, out of scope per spec Non-goals)
// transform pipeline would populate; it is given the work tree materialized
// from the origin checkout and may mutate it in place before the result is
// handed to the writer. A nil TransformFunc is the identity transform.
type TransformFunc func(ctx context.Context, tr *revision.TransformResult) error

// Config parameterizes an Executor.
type Config struct {
	Mode Mode

	Origin      *origin.GitOrigin
	Destination *destination.GitDestination
	Transform   TransformFunc

	// MigrateNoopChanges controls ITERATIVE's behavior for interior changes
	// that stage an empty diff: true records a Noop effect and continues;
	// false drops the change and folds its origin label into the next
	// non-empty commit instead.
	MigrateNoopChanges bool

	// Force converts a destination rejection (other than RebaseConflict,
	// which is always fatal) into a warning and continues, per spec §4.5/§7.
	Force bool

	// BaselineLabel is the commit-message label CHANGE_REQUEST mode looks
	// for to resolve an explicit baseline before falling back to
	// findBaselinesWithoutLabel.
	BaselineLabel string

	RetryPolicy retry.Policy
	Log         *slog.Logger
}

// Executor runs one migration mode to completion.
type Executor struct {
	cfg Config
}

// New returns an Executor for cfg.
func New(cfg Config) *Executor {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.RetryPolicy == (retry.Policy{}) {
		cfg.RetryPolicy = retry.DefaultPolicy
	}
	return &Executor{cfg: cfg}
}

// Run executes one migration from lastRev (exclusive, the zero value
// meaning "from the beginning of history") to currentRev (inclusive),
// dispatching to the configured Mode.
func (e *Executor) Run(ctx context.Context, lastRev, currentRev revision.Revision) ([]destination.Effect, error) {
	switch e.cfg.Mode {
	case Iterative:
		return e.runIterative(ctx, lastRev, currentRev)
	case ChangeRequest:
		return e.runChangeRequest(ctx, currentRev)
	default:
		return e.runSquash(ctx, lastRev, currentRev)
	}
}

func (e *Executor) runSquash(ctx context.Context, lastRev, currentRev revision.Revision) ([]destination.Effect, error) {
	resp, err := e.cfg.Origin.Changes(ctx, lastRev, currentRev)
	if err != nil {
		return nil, fmt.Errorf("listing changes for squash: %w", err)
	}
	if resp.Empty() {
		e.cfg.Log.Info("squash: nothing to migrate", "reason", resp.EmptyReason)
		return nil, nil
	}

	workdir, err := os.MkdirTemp("", "copybara-squash-*")
	if err != nil {
		return nil, fmt.Errorf("creating squash work tree: %w", err)
	}
	defer os.RemoveAll(workdir)

	if err := e.cfg.Origin.Checkout(ctx, currentRev, workdir); err != nil {
		return nil, fmt.Errorf("checking out squash revision: %w", err)
	}

	tr := revision.TransformResult{
		WorkDir:           workdir,
		CurrentRevision:   currentRev,
		RequestedRevision: currentRev,
		Author:            resp.Changes[len(resp.Changes)-1].Author,
		Summary:           squashSummary(resp.Changes),
		Changes:           resp.Changes,
		SetRevID:          true,
	}

	effects, err := e.transformAndWrite(ctx, &tr)
	if err != nil {
		return effects, err
	}
	return effects, nil
}

// squashSummary lists each included change's short sha1 and first-line
// message, per spec §4.5; the per-change origin labels are appended
// afterwards by the destination writer.
func squashSummary(changes []revision.Change) string {
	var lines []string
	for _, c := range changes {
		lines = append(lines, "  - "+c.Revision.SHA1[:min(12, len(c.Revision.SHA1))]+" "+c.FirstLineMessage())
	}
	return fmt.Sprintf("Squash of %d changes:\n%s", len(changes), strings.Join(lines, "\n"))
}

func (e *Executor) runIterative(ctx context.Context, lastRev, currentRev revision.Revision) ([]destination.Effect, error) {
	resp, err := e.cfg.Origin.Changes(ctx, lastRev, currentRev)
	if err != nil {
		return nil, fmt.Errorf("listing changes for iterative: %w", err)
	}
	if resp.Empty() {
		e.cfg.Log.Info("iterative: nothing to migrate", "reason", resp.EmptyReason)
		return nil, nil
	}

	var allEffects []destination.Effect
	var carriedLabelChanges []revision.Change

	for i, c := range resp.Changes {
		workdir, err := os.MkdirTemp("", "copybara-iterative-*")
		if err != nil {
			return allEffects, fmt.Errorf("creating work tree for %s: %w", c.Revision.SHA1, err)
		}

		if err := e.cfg.Origin.Checkout(ctx, c.Revision, workdir); err != nil {
			os.RemoveAll(workdir)
			return allEffects, fmt.Errorf("checking out %s: %w", c.Revision.SHA1, err)
		}

		tr := revision.TransformResult{
			WorkDir:           workdir,
			CurrentRevision:   c.Revision,
			RequestedRevision: c.Revision,
			Author:            c.Author,
			Summary:           c.Message,
			Changes:           append(append([]revision.Change{}, carriedLabelChanges...), c),
			SetRevID:          true,
		}

		effects, werr := e.transformAndWrite(ctx, &tr)
		os.RemoveAll(workdir)

		isLast := i == len(resp.Changes)-1
		if werr != nil {
			if copybaraerror.KindOf(werr) == copybaraerror.KindRedundantChange {
				if e.cfg.MigrateNoopChanges || isLast {
					allEffects = append(allEffects, destination.Effect{Type: destination.Noop})
					carriedLabelChanges = nil
				} else {
					carriedLabelChanges = append(carriedLabelChanges, c)
				}
				continue
			}
			if e.cfg.Force && copybaraerror.KindOf(werr) != copybaraerror.KindRebaseConflict {
				e.cfg.Log.Warn("destination rejected change, continuing due to --force", "revision", c.Revision.SHA1, "error", werr)
				allEffects = append(allEffects, destination.Effect{Type: destination.Error, Err: werr})
				continue
			}
			return allEffects, werr
		}

		allEffects = append(allEffects, effects...)
		carriedLabelChanges = nil
	}

	return allEffects, nil
}

func (e *Executor) runChangeRequest(ctx context.Context, currentRev revision.Revision) ([]destination.Effect, error) {
	change, err := e.cfg.Origin.Change(ctx, currentRev)
	if err != nil {
		return nil, fmt.Errorf("reading change request revision: %w", err)
	}

	baseline, err := e.resolveBaseline(ctx, change, currentRev)
	if err != nil {
		return nil, err
	}

	workdir, err := os.MkdirTemp("", "copybara-change-request-*")
	if err != nil {
		return nil, fmt.Errorf("creating change-request work tree: %w", err)
	}
	defer os.RemoveAll(workdir)

	if err := e.cfg.Origin.Checkout(ctx, currentRev, workdir); err != nil {
		return nil, fmt.Errorf("checking out change-request revision: %w", err)
	}

	tr := revision.TransformResult{
		WorkDir:           workdir,
		CurrentRevision:   currentRev,
		RequestedRevision: currentRev,
		Author:            change.Author,
		Summary:           change.Message,
		Baseline:          baseline,
		Changes:           []revision.Change{change},
		SetRevID:          true,
	}

	return e.transformAndWrite(ctx, &tr)
}

// resolveBaseline implements spec §4.5's CHANGE_REQUEST baseline
// resolution: a known label on the change itself, else
// findBaselinesWithoutLabel's newest result.
func (e *Executor) resolveBaseline(ctx context.Context, change revision.Change, currentRev revision.Revision) (string, error) {
	if e.cfg.BaselineLabel != "" {
		if v, ok := change.Labels().Get(e.cfg.BaselineLabel); ok {
			return v, nil
		}
	}

	candidates, err := e.cfg.Origin.FindBaselinesWithoutLabel(ctx, currentRev, 1)
	if err != nil {
		return "", fmt.Errorf("finding baseline for change request: %w", err)
	}
	if len(candidates) == 0 {
		return "", copybaraerror.Newf(copybaraerror.KindValidation, currentRev.SHA1, "no baseline found for change request")
	}
	return candidates[0].SHA1, nil
}

// mergeChangeLabels unions the label occurrences carried by every change
// folded into a TransformResult, in change order, so an integrate label
// (or any other trailer) set on any one of them -- not just the most
// recent -- reaches the destination's Integrator. Returns a non-nil, possibly-empty Multimap, since the
// destination writer and pkg/integrate both key off a non-nil
// TransformResult.Labels.
func mergeChangeLabels(changes []revision.Change) *label.Multimap {
	m := label.NewMultimap()
	for i := range changes {
		for _, l := range changes[i].Labels().Labels() {
			m.Add(l.Name, l.Value)
		}
	}
	return m
}

// transformAndWrite runs the configured transform hook then hands the
// result to the destination writer, retrying the write with bounded
// backoff for transient errors only (spec §4.5 "Cancellation & retry").
func (e *Executor) transformAndWrite(ctx context.Context, tr *revision.TransformResult) ([]destination.Effect, error) {
	if e.cfg.Transform != nil {
		if err := e.cfg.Transform(ctx, tr); err != nil {
			return nil, fmt.Errorf("running transform: %w", err)
		}
	}
	if tr.Labels == nil {
		tr.Labels = mergeChangeLabels(tr.Changes)
	}

	var effects []destination.Effect
	err := retry.Do(ctx, e.cfg.Log, e.cfg.RetryPolicy, "destination.write", func(ctx context.Context) error {
		var werr error
		effects, werr = e.cfg.Destination.Write(ctx, *tr)
		return werr
	})
	return effects, err
}
