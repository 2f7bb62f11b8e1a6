package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/config"
	"github.com/stupid-simple/patchwatch/database"
	"github.com/stupid-simple/patchwatch/fileutils"
	"github.com/stupid-simple/patchwatch/lock"
	"github.com/stupid-simple/patchwatch/scheduler"
	"golang.org/x/sync/errgroup"
)

const configPollInterval = 30 * time.Second

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Daemon.Config)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	db, err := openDatabase(args.Daemon.DatabaseArgs, logger, args.Daemon.DryRun)
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}

	locker, closeLocker := newLocker(cfg, logger)
	defer func() {
		_ = closeLocker()
	}()

	if args.Daemon.Once {
		return runOnce(ctx, cfg, db, locker, logger, args.Daemon.DryRun)
	}

	scheduler := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	addReconcileJobsFromConfig(ctx, scheduler, cfg, db, locker, logger, args.Daemon.DryRun)

	startConfigFileWatcher(ctx, args.Daemon.Config, logger, func(cfg *config.Config) {
		scheduler.RemoveJobs()
		addReconcileJobsFromConfig(ctx, scheduler, cfg, db, locker, logger, args.Daemon.DryRun)
	})

	scheduler.Start()
	defer scheduler.Stop()

	<-ctx.Done()

	return nil
}

// runOnce reconciles every enabled repository a single time, at most
// cfg.Concurrency at once. A failed pass does not stop the others; the
// returned error joins the failures of every repository.
func runOnce(
	ctx context.Context,
	cfg *config.Config,
	db *database.Database,
	locker lock.Locker,
	logger zerolog.Logger,
	dryRun bool,
) error {
	reconciler := newReconciler(db, newNotifier(cfg, logger, dryRun), logger)
	repos := enabledRepositories(cfg, logger)
	errs := make([]error, len(repos))

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for i, repo := range repos {
		job := newJob(ctx, repo, db, reconciler, locker, logger)
		g.Go(func() error {
			if err := job.run(ctx); err != nil {
				logger.Error().Err(err).Str("repository", repo.Slug).Msg("reconcile pass failed")
				errs[i] = fmt.Errorf("repository %s: %w", repo.Slug, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// enabledRepositories drops disabled and duplicate repositories.
func enabledRepositories(cfg *config.Config, logger zerolog.Logger) []config.ConfigRepository {
	slugs := make(map[string]struct{})
	out := []config.ConfigRepository{}

	for _, repo := range cfg.Repositories {
		if _, ok := slugs[repo.Slug]; ok {
			logger.Warn().Str("repository", repo.Slug).Msg("skipping duplicate repository")
			continue
		}
		slugs[repo.Slug] = struct{}{}

		if !repo.Enable {
			logger.Info().Str("repository", repo.Slug).Msg("skipping disabled repository")
			continue
		}
		out = append(out, repo)
	}
	return out
}

func addReconcileJobsFromConfig(
	ctx context.Context,
	scheduler *scheduler.Scheduler,
	cfg *config.Config,
	db *database.Database,
	locker lock.Locker,
	logger zerolog.Logger,
	dryRun bool,
) {
	reconciler := newReconciler(db, newNotifier(cfg, logger, dryRun), logger)

	for _, repo := range enabledRepositories(cfg, logger) {
		job := newJob(ctx, repo, db, reconciler, locker, logger)
		if err := scheduler.AddReconcileJob(repo.Slug, repo.Schedule, job); err != nil {
			logger.Error().Err(err).Str("repository", repo.Slug).Msg("could not add reconcile job")
			continue
		}

		logger.Info().
			Object("repository", repo).
			Msg("added reconcile job")
	}
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, onChanged func(cfg *config.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, configPollInterval, func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for range watcher {
			logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

			cfg, err := config.LoadFromFile(cfgPath)
			if err != nil {
				logger.Error().Err(err).Msg("could not load config, keeping the current jobs")
				continue
			}

			onChanged(cfg)
		}
	}()
}
