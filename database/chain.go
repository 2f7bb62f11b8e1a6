package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertChains records chain links in one transaction. Links that
// already exist only get their LastOffered refreshed, their linkage
// is never rewritten.
func (d *Database) UpsertChains(ctx context.Context, chains []PatchChain) error {
	if len(chains) == 0 {
		return nil
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Int("links", len(chains)).Msg("would record patch chain (dry run)")
		return nil
	}

	return d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range chains {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "patch_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"last_offered": chains[i].LastOffered}),
			}).Create(&chains[i]).Error
			if err != nil {
				return fmt.Errorf("failed to record chain of patch %d: %w", chains[i].PatchID, err)
			}
		}
		return nil
	})
}

// GetChain returns the chain link of a patch, or nil when none is recorded.
func (d *Database) GetChain(ctx context.Context, patchID uint) (*PatchChain, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	chain := &PatchChain{}
	err := d.Cli.WithContext(ctx).Where("patch_id = ?", patchID).First(chain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// FindChains returns the chain links of one repository.
func (d *Database) FindChains(ctx context.Context, repositoryID uint) ([]PatchChain, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	chains := []PatchChain{}
	err := d.Cli.WithContext(ctx).
		Where("repository_id = ?", repositoryID).
		Order("patch_id").
		Find(&chains).Error
	if err != nil {
		return nil, err
	}
	return chains, nil
}
