// Command copybara is the CLI entry point for the migration engine (spec
// §6): `copybara migrate <config> [<workflow>] [<source-ref>...]`.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/copybara-oss/copybara/pkg/copybaraconfig"
	"github.com/copybara-oss/copybara/pkg/copybaraerror"
	"github.com/copybara-oss/copybara/pkg/destination"
	"github.com/copybara-oss/copybara/pkg/gitrepo"
	"github.com/copybara-oss/copybara/pkg/integrate"
	"github.com/copybara-oss/copybara/pkg/metrics"
	"github.com/copybara-oss/copybara/pkg/origin"
	"github.com/copybara-oss/copybara/pkg/revision"
	"github.com/copybara-oss/copybara/pkg/workflow"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

func main() {
	cmd := &cli.Command{
		Name:  "copybara",
		Usage: "batch source-code migration engine",
		Commands: []*cli.Command{
			migrateCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "run one migration workflow",
		ArgsUsage: "<config> [<workflow>] [<source-ref>...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "continue past non-fatal destination rejections"},
			&cli.BoolFlag{Name: "dry-run", Usage: "compute and show the change without pushing"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.StringSliceFlag{Name: "git-push-option", Usage: "forwarded as --push-option to the destination push"},
			&cli.StringFlag{Name: "gerrit-change-id", Usage: "Change-Id to land the migrated commit onto"},
			&cli.StringFlag{Name: "github-destination-pr-branch", Usage: "feature branch name for a GitHub PR destination"},
			&cli.StringFlag{Name: "gerrit-topic", Usage: "topic to set on the landed Gerrit change"},
		},
		Action: runMigrate,
	}
}

func runMigrate(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("verbose") {
		loggerLevel.Set(slog.LevelDebug)
	}

	args := cmd.Args().Slice()
	if len(args) < 1 {
		return copybaraerror.Newf(copybaraerror.KindValidation, "", "usage: copybara migrate <config> [<workflow>] [<source-ref>...]")
	}
	configPath := args[0]

	cfg, err := copybaraconfig.Load(configPath)
	if err != nil {
		return copybaraerror.New(copybaraerror.KindValidation, configPath, err)
	}

	cache, err := gitrepo.NewCache(cfg.CacheRoot, logger)
	if err != nil {
		return copybaraerror.New(copybaraerror.KindInternal, cfg.CacheRoot, err)
	}

	originURL, err := gitrepo.ParseURL(cfg.Origin.URL)
	if err != nil {
		return copybaraerror.New(copybaraerror.KindValidation, cfg.Origin.URL, err)
	}
	destinationURL, err := gitrepo.ParseURL(cfg.Destination.URL)
	if err != nil {
		return copybaraerror.New(copybaraerror.KindValidation, cfg.Destination.URL, err)
	}

	originRepo, unlockOrigin, err := cache.Get(ctx, originURL, false)
	if err != nil {
		return copybaraerror.New(copybaraerror.KindRepo, cfg.Origin.URL, err)
	}
	defer unlockOrigin()

	destinationRepo, unlockDestination, err := cache.Get(ctx, destinationURL, false)
	if err != nil {
		return copybaraerror.New(copybaraerror.KindRepo, cfg.Destination.URL, err)
	}
	defer unlockDestination()

	originRef := cfg.Origin.Ref
	if originRef == "" {
		originRef = "HEAD"
	}
	if _, err := originRepo.Fetch(ctx, cfg.Origin.URL, []string{originRef}, gitrepo.FetchOptions{}); err != nil {
		return copybaraerror.New(copybaraerror.KindTransient, cfg.Origin.URL, err)
	}

	bindings, err := cfg.IntegrateBindings()
	if err != nil {
		return copybaraerror.New(copybaraerror.KindValidation, configPath, err)
	}
	resolver := integrate.NewResolver(destinationRepo, bindings, logger)

	o := origin.New(originRepo, cfg.Origin.URL, origin.Config{
		Glob:          cfg.GlobValue(),
		FirstParent:   true,
		BaselineLabel: cfg.BaselineLabel,
	}, logger)

	d := destination.New(destinationRepo, cfg.Destination.URL, destination.Config{
		FetchRef:    "refs/heads/" + cfg.Destination.Ref,
		Glob:        cfg.GlobValue(),
		OriginLabel: "GitOrigin-RevId",
		DryRun:      cmd.Bool("dry-run"),
		Force:       cmd.Bool("force"),
		PushOptions: cmd.StringSlice("git-push-option"),
		Integrator:  resolver,
	}, logger)

	exec := workflow.New(workflow.Config{
		Mode:          cfg.WorkflowMode(),
		Origin:        o,
		Destination:   d,
		Force:         cmd.Bool("force"),
		BaselineLabel: cfg.BaselineLabel,
		RetryPolicy:   cfg.RetryPolicy(),
		Log:           logger,
	})

	status, err := d.GetDestinationStatus(ctx, "GitOrigin-RevId")
	if err != nil {
		return copybaraerror.New(copybaraerror.KindRepo, cfg.Destination.URL, err)
	}
	lastRev := revision.Revision{SHA1: status.BaselineSHA1}

	currentRev, err := o.Resolve(ctx, resolveSourceRef(args, originRef))
	if err != nil {
		return copybaraerror.New(copybaraerror.KindValidation, originRef, err)
	}

	rec := metrics.NewRecorder(cfg.Workflow, cfg.MetricsPushgatewayURL)
	start := time.Now()

	effects, err := exec.Run(ctx, lastRev, currentRev)
	for _, e := range effects {
		logger.Info("migration effect", "type", e.Type, "ref", e.DestinationRef)
		rec.RecordEffect(cfg.Workflow, e.Type.String())
	}
	rec.RecordRun(cfg.Workflow, err == nil, start)
	if pushErr := rec.Push(); pushErr != nil {
		logger.Warn("metrics push failed", "error", pushErr)
	}
	if err != nil {
		return err
	}

	if sweepErr := cache.Sweep(ctx, []*gitrepo.RepoURL{originURL, destinationURL}); sweepErr != nil {
		logger.Warn("cache sweep failed", "error", sweepErr)
	}
	return nil
}

// resolveSourceRef picks the ref to migrate: the last CLI positional
// argument if one was given beyond <config>[, <workflow>], else the
// configured origin ref.
func resolveSourceRef(args []string, originRef string) string {
	if len(args) > 2 {
		return args[len(args)-1]
	}
	return originRef
}

// exitCodeFor maps a classified error to spec §6's exit code classes: 0
// success (never reached here), 1 user/validation, 2 repo, 3
// transient/network, 4 internal.
func exitCodeFor(err error) int {
	switch copybaraerror.KindOf(err) {
	case copybaraerror.KindValidation, copybaraerror.KindRedundantChange:
		return 1
	case copybaraerror.KindRepo, copybaraerror.KindRebaseConflict:
		return 2
	case copybaraerror.KindTransient:
		return 3
	default:
		return 4
	}
}
