package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/config"
)

func reconcileCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Reconcile.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	var cfg *config.Config
	if args.Reconcile.Config != "" {
		var err error
		cfg, err = config.LoadFromFile(args.Reconcile.Config)
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}
	}

	db, err := openDatabase(args.Reconcile.DatabaseArgs, logger, args.Reconcile.DryRun)
	if err != nil {
		return err
	}

	locker, closeLocker := newLocker(cfg, logger)
	defer func() {
		_ = closeLocker()
	}()

	notifier := newNotifier(cfg, logger, args.Reconcile.DryRun)
	job := newJob(ctx, config.ConfigRepository{
		Slug:         args.Reconcile.Repository,
		PatchList:    args.Reconcile.PatchList,
		Mode:         args.Reconcile.Mode,
		FetchTimeout: config.Duration(config.DefaultFetchTimeout),
	}, db, newReconciler(db, notifier, logger), locker, logger)

	startTime := time.Now()
	err = job.run(ctx)
	logger.Info().
		Str("repository", args.Reconcile.Repository).
		Stringer("mode", args.Reconcile.Mode).
		Float64("seconds", time.Since(startTime).Seconds()).
		Msg("reconcile finished")
	return err
}
