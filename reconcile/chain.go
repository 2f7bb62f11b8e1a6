package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/database"
	"github.com/stupid-simple/patchwatch/patchlist"
	"github.com/stupid-simple/patchwatch/version"
)

var ErrChainResolutionGap = errors.New("chain resolution gap")

type ChainStore interface {
	PatchIDs(ctx context.Context, repositoryID uint, versionStrings []string) (map[string]uint, error)
	UpsertChains(ctx context.Context, chains []database.PatchChain) error
}

// ChainBuilder records which patch precedes which in a repository.
type ChainBuilder struct {
	store  ChainStore
	logger zerolog.Logger
}

func NewChainBuilder(store ChainStore, logger zerolog.Logger) *ChainBuilder {
	return &ChainBuilder{store: store, logger: logger}
}

// RecordChain links the entries of one effective repository in
// ascending version order. Either every link is recorded or none is:
// if an entry has no stored patch, ErrChainResolutionGap is returned
// and the recorded chain is left as it was.
func (c *ChainBuilder) RecordChain(ctx context.Context, now time.Time, repositoryID uint, entries []patchlist.Entry) error {
	logger := c.logger.With().Uint("repository_id", repositoryID).Logger()

	type sortable struct {
		version string
		key     int64
	}

	seen := make(map[string]struct{}, len(entries))
	ordered := make([]sortable, 0, len(entries))
	for _, e := range entries {
		canonical, err := version.Canonical(e.Version)
		if err != nil {
			return err
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}

		ordered = append(ordered, sortable{version: canonical, key: version.MustEncode(canonical)})
	}
	if len(ordered) == 0 {
		return nil
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].key < ordered[j].key
	})

	logger.Info().Int("patches", len(ordered)).Msg("recording patch chain")

	versionStrings := make([]string, 0, len(ordered))
	for _, s := range ordered {
		versionStrings = append(versionStrings, s.version)
	}
	ids, err := c.store.PatchIDs(ctx, repositoryID, versionStrings)
	if err != nil {
		return err
	}

	chains := make([]database.PatchChain, 0, len(ordered))
	var previous *uint
	for _, s := range ordered {
		id, ok := ids[s.version]
		if !ok {
			return fmt.Errorf("%w: no stored patch for version %s of repository %d",
				ErrChainResolutionGap, s.version, repositoryID)
		}

		link := database.PatchChain{
			PatchID:      id,
			RepositoryID: repositoryID,
			FirstOffered: now,
			LastOffered:  now,
		}
		if previous != nil {
			prev := *previous
			link.PreviousPatchID = &prev
			link.HasPrerequisitePatch = true
		}
		chains = append(chains, link)

		current := id
		previous = &current
	}

	if err := c.store.UpsertChains(ctx, chains); err != nil {
		return err
	}

	logger.Info().Int("links", len(chains)).Msg("recorded patch chain")
	return nil
}
