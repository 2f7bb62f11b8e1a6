// Package reconcile merges remote patch list snapshots into the stored
// patch history and rebuilds the patch chains.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/database"
	"github.com/stupid-simple/patchwatch/expansion"
	"github.com/stupid-simple/patchwatch/notify"
	"github.com/stupid-simple/patchwatch/patchlist"
	"github.com/stupid-simple/patchwatch/version"
)

type Store interface {
	ChainStore
	ListRepositories(ctx context.Context, ids ...uint) ([]database.Repository, error)
	ExpansionMappings(ctx context.Context, gameRepositoryID uint) ([]expansion.Mapping, error)
	FindPatches(ctx context.Context, repositoryIDs []uint) ([]database.Patch, error)
	CreatePatch(ctx context.Context, patch *database.Patch) error
	UpdatePatch(ctx context.Context, patch *database.Patch) error
}

type Notifier interface {
	Notify(ctx context.Context, patches []notify.Patch, mode patchlist.Mode) error
}

// Reconciler runs reconciliation passes. Passes for the same repository
// must not run concurrently.
type Reconciler struct {
	store  Store
	chains *ChainBuilder
	logger zerolog.Logger
	opts   options
}

func New(store Store, logger zerolog.Logger, opts ...Option) *Reconciler {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Reconciler{
		store:  store,
		chains: NewChainBuilder(store, logger),
		logger: logger,
		opts:   o,
	}
}

type patchKey struct {
	repositoryID uint
	version      string
}

// Reconcile merges one patch list snapshot of repo into the store and
// returns the patches worth alerting about: the ones seen for the first
// time and, in Offered mode, the ones offered for the first time.
//
// Every entry is committed on its own. When an error is returned the
// entries committed so far stay in place; running the pass again is safe.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	repo database.Repository,
	remote []patchlist.Entry,
	mode patchlist.Mode,
) ([]database.Patch, error) {
	now := r.opts.now().UTC()
	logger := r.logger.With().
		Str("repository", repo.Slug).
		Str("pass", uuid.NewString()).
		Stringer("mode", mode).
		Logger()

	startTime := time.Now()
	logger.Info().Int("remote_patches", len(remote)).Msg("starting reconciliation")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("reconciliation cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("reconciliation done")
		}
	}()

	mappings, err := r.store.ExpansionMappings(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("could not load expansion mappings: %w", err)
	}
	mapper, err := expansion.NewMapper(repo.ID, mappings)
	if err != nil {
		return nil, err
	}
	repositoryIDs := mapper.RepositoryIDs()

	// Attribution and version keys are pure: resolve them for the whole
	// list before writing anything. Versions are stored in canonical form.
	remote = slices.Clone(remote)
	effective := make([]uint, len(remote))
	sortKeys := make([]int64, len(remote))
	for i := range remote {
		effective[i], err = mapper.EffectiveRepository(remote[i].URL)
		if err != nil {
			return nil, err
		}
		remote[i].Version, err = version.Canonical(remote[i].Version)
		if err != nil {
			return nil, err
		}
		sortKeys[i] = version.MustEncode(remote[i].Version)
	}

	existing, err := r.store.FindPatches(ctx, repositoryIDs)
	if err != nil {
		return nil, fmt.Errorf("could not load stored patches: %w", err)
	}
	local := make(map[patchKey]*database.Patch, len(existing))
	for i := range existing {
		p := &existing[i]
		local[patchKey{p.RepositoryID, p.Version.VersionString}] = p
	}

	throttledLogger := logger.Sample(&zerolog.BurstSampler{
		Burst:  1,
		Period: 1 * time.Second,
	})

	alertable := []database.Patch{}
	var countNew, countSeen int
	for i, entry := range remote {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		key := patchKey{effective[i], entry.Version}
		patch, ok := local[key]
		if !ok {
			patch = newPatch(now, effective[i], sortKeys[i], entry, mode)
			if err := r.store.CreatePatch(ctx, patch); err != nil {
				return nil, fmt.Errorf("could not store patch %s: %w", entry.Version, err)
			}
			logger.Info().Object("patch", entry).Uint("repository_id", effective[i]).Msg("discovered new patch")

			local[key] = patch
			alertable = append(alertable, *patch)
			countNew++
			if r.opts.onDiscovered != nil {
				r.opts.onDiscovered(*patch)
			}
			continue
		}

		firstOffer := updatePatch(now, patch, entry, mode)
		if err := r.store.UpdatePatch(ctx, patch); err != nil {
			return nil, fmt.Errorf("could not update patch %s: %w", entry.Version, err)
		}
		logger.Trace().Object("patch", entry).Msg("patch already present")
		if firstOffer {
			logger.Info().Object("patch", entry).Msg("patch offered for the first time")
			alertable = append(alertable, *patch)
		}
		countSeen++

		throttledLogger.Info().
			Int("processed", i+1).
			Int("total", len(remote)).
			Msg("reconciling patches")
	}

	logger.Info().Int("new", countNew).Int("seen", countSeen).Int("alertable", len(alertable)).Msg("patches reconciled")

	for _, repositoryID := range repositoryIDs {
		entries := []patchlist.Entry{}
		for i, entry := range remote {
			if effective[i] == repositoryID {
				entries = append(entries, entry)
			}
		}

		err := r.chains.RecordChain(ctx, now, repositoryID, entries)
		if errors.Is(err, ErrChainResolutionGap) {
			logger.Error().Err(err).Uint("repository_id", repositoryID).Msg("backing out of patch chain recording")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not record patch chain of repository %d: %w", repositoryID, err)
		}
	}

	if len(alertable) > 0 && r.opts.notifier != nil {
		r.notify(ctx, logger, repositoryIDs, alertable, mode)
	}

	return alertable, nil
}

func (r *Reconciler) notify(
	ctx context.Context,
	logger zerolog.Logger,
	repositoryIDs []uint,
	patches []database.Patch,
	mode patchlist.Mode,
) {
	repos, err := r.store.ListRepositories(ctx, repositoryIDs...)
	if err != nil {
		logger.Error().Err(err).Msg("could not load repositories, skipping alerts")
		return
	}
	byID := make(map[uint]database.Repository, len(repos))
	for _, repo := range repos {
		byID[repo.ID] = repo
	}

	batch := make([]notify.Patch, 0, len(patches))
	for _, p := range patches {
		repo := byID[p.RepositoryID]
		batch = append(batch, notify.Patch{
			RepositoryName: repo.Name,
			RepositorySlug: repo.Slug,
			Version:        p.Version.VersionString,
			URL:            p.RemoteOriginPath,
			Size:           p.Size,
		})
	}

	if err := r.opts.notifier.Notify(ctx, batch, mode); err != nil {
		logger.Warn().Err(err).Msg("some alerts could not be delivered")
	}
}

func newPatch(now time.Time, repositoryID uint, sortKey int64, entry patchlist.Entry, mode patchlist.Mode) *database.Patch {
	patch := &database.Patch{
		Version: database.Version{
			RepositoryID:  repositoryID,
			SortKey:       sortKey,
			VersionString: entry.Version,
		},
		RepositoryID:     repositoryID,
		RemoteOriginPath: entry.URL,
		Size:             entry.Length,
		FirstSeen:        &now,
		LastSeen:         &now,
	}

	if mode == patchlist.Offered {
		patch.FirstOffered = &now
		patch.LastOffered = &now
		setLauncherMetadata(patch, entry)
	}
	return patch
}

// updatePatch refreshes a stored patch and reports whether this is the
// first time it is offered.
func updatePatch(now time.Time, patch *database.Patch, entry patchlist.Entry, mode patchlist.Mode) bool {
	patch.LastSeen = &now
	if mode != patchlist.Offered {
		return false
	}

	patch.LastOffered = &now
	if patch.FirstOffered != nil {
		return false
	}

	patch.FirstOffered = &now
	setLauncherMetadata(patch, entry)
	return true
}

// Only offered entries carry trustworthy hash metadata. Some feeds echo
// the url in the hash type field.
func setLauncherMetadata(patch *database.Patch, entry patchlist.Entry) {
	patch.Size = entry.Length

	patch.HashType = nil
	if entry.HashType != "" && entry.HashType != entry.URL {
		hashType := entry.HashType
		patch.HashType = &hashType
	}

	patch.HashBlockSize = nil
	if entry.HashBlockSize != 0 {
		blockSize := entry.HashBlockSize
		patch.HashBlockSize = &blockSize
	}

	patch.Hashes = nil
	if len(entry.Hashes) > 0 {
		patch.Hashes = append(patch.Hashes, entry.Hashes...)
	}
}
