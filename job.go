package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/config"
	"github.com/stupid-simple/patchwatch/database"
	"github.com/stupid-simple/patchwatch/lock"
	"github.com/stupid-simple/patchwatch/notify"
	"github.com/stupid-simple/patchwatch/patchlist"
	"github.com/stupid-simple/patchwatch/reconcile"
)

type reconcileJob struct {
	ctx        context.Context
	slug       string
	mode       patchlist.Mode
	source     patchlist.Source
	db         *database.Database
	reconciler *reconcile.Reconciler
	locker     lock.Locker
	logger     zerolog.Logger
}

func (j *reconcileJob) Run() {
	if err := j.run(j.ctx); err != nil {
		j.logger.Error().Err(err).Msg("reconcile job failed")
	}
}

func (j *reconcileJob) run(ctx context.Context) error {
	release, err := j.locker.TryLock(ctx, j.slug)
	if errors.Is(err, lock.ErrHeld) {
		j.logger.Warn().Msg("another pass is running for this repository, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.logger.Error().Err(err).Msg("could not release repository lock")
		}
	}()

	repo, err := j.db.GetRepository(ctx, j.slug)
	if err != nil {
		return err
	}

	entries, err := j.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("could not load patch list: %w", err)
	}

	_, err = j.reconciler.Reconcile(ctx, *repo, entries, j.mode)
	return err
}

func newJob(
	ctx context.Context,
	cfgRepo config.ConfigRepository,
	db *database.Database,
	reconciler *reconcile.Reconciler,
	locker lock.Locker,
	logger zerolog.Logger,
) *reconcileJob {
	source := patchlist.NewSource(cfgRepo.PatchList, cfgRepo.FetchTimeout.Duration())
	if h, ok := source.(*patchlist.HTTPSource); ok {
		h.MaxSize = cfgRepo.MaxListSize.Size
	}

	return &reconcileJob{
		ctx:        ctx,
		slug:       cfgRepo.Slug,
		mode:       cfgRepo.Mode,
		source:     source,
		db:         db,
		reconciler: reconciler,
		locker:     locker,
		logger:     logger.With().Str("repository", cfgRepo.Slug).Logger(),
	}
}

// newNotifier builds the alert sinks of cfg. Without a config, or in dry
// run, alerts only go to the log.
func newNotifier(cfg *config.Config, logger zerolog.Logger, dryRun bool) *notify.Notifier {
	logSink := &notify.LogSink{Logger: logger.With().Str("component", "alerts").Logger()}
	if cfg == nil {
		return notify.New(logger, notify.WithSink(logSink))
	}

	opts := []notify.Option{
		notify.WithBaseURL(cfg.Alerts.BaseURL),
		notify.WithTimeout(cfg.Alerts.Timeout.Duration()),
	}
	if cfg.Alerts.Log || dryRun || len(cfg.Webhooks) == 0 {
		opts = append(opts, notify.WithSink(logSink))
	}
	if !dryRun {
		client := &http.Client{Timeout: cfg.Alerts.Timeout.Duration()}
		for _, hook := range cfg.Webhooks {
			opts = append(opts, notify.WithSink(&notify.WebhookSink{
				HookName:  hook.Name,
				URL:       hook.URL,
				Username:  hook.Username,
				AvatarURL: hook.AvatarURL,
				Client:    client,
			}))
		}
	}

	return notify.New(logger, opts...)
}

// newLocker returns a Redis backed locker when an address is configured.
func newLocker(cfg *config.Config, logger zerolog.Logger) (lock.Locker, func() error) {
	if cfg == nil || cfg.Lock.RedisAddr == "" {
		return lock.NewMemory(), func() error { return nil }
	}

	logger.Info().Str("addr", cfg.Lock.RedisAddr).Msg("using redis repository locks")
	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	return lock.NewRedis(client, "patchwatch:lock:", cfg.Lock.TTL.Duration()), client.Close
}

func newReconciler(db *database.Database, notifier *notify.Notifier, logger zerolog.Logger) *reconcile.Reconciler {
	return reconcile.New(db, logger,
		reconcile.WithNotifier(notifier),
		reconcile.WithDiscoveredFunc(func(p database.Patch) {
			logger.Debug().Object("patch", p).Msg("patch ready for download")
		}),
	)
}
