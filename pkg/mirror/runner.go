package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/hostapi"
)

// Runner executes Jobs against one origin/destination remote pair, each
// backed by a cache-resident bare Repo (spec §4.1's Cache).
type Runner struct {
	Origin         *gitrepo.Repo
	OriginURL      string
	Destination    *gitrepo.Repo
	DestinationURL string

	OriginAPI      hostapi.ReviewRequester
	DestinationAPI hostapi.ReviewRequester
	Console        Console

	// Force converts a mid-job action error into a recorded warning and
	// continues with the remaining actions, per spec §4.6 invariant (b).
	Force bool

	Log *slog.Logger
}

// Run executes job's actions in declared order, stopping at the first
// error() unless r.Force is set, in which case every failure is
// accumulated and returned together once the job has run to completion.
func (r *Runner) Run(ctx context.Context, job Job) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	mc := &MirrorContext{
		ctx:            ctx,
		origin:         r.Origin,
		originURL:      r.OriginURL,
		destination:    r.Destination,
		destinationURL: r.DestinationURL,
		refspecs:       job.Refspecs,
		force:          r.Force,
		originAPI:      r.OriginAPI,
		destinationAPI: r.DestinationAPI,
		console:        r.Console,
		log:            log,
	}

	var errs []error
	for _, action := range job.Actions {
		res := action.Run(mc)
		if res.Err == nil {
			continue
		}

		wrapped := fmt.Errorf("mirror job %q action %q: %w", job.Name, action.Name, res.Err)
		if !r.Force {
			return wrapped
		}
		log.Warn("mirror action failed, continuing due to --force", "job", job.Name, "action", action.Name, "error", res.Err)
		errs = append(errs, wrapped)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
