package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindPatches returns every patch filed under one of repositoryIDs with
// its version loaded.
func (d *Database) FindPatches(ctx context.Context, repositoryIDs []uint) ([]Patch, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	patches := []Patch{}
	if len(repositoryIDs) == 0 {
		return patches, nil
	}

	err := d.Cli.WithContext(ctx).
		Preload("Version").
		Where("repository_id IN ?", repositoryIDs).
		Order("id").
		Find(&patches).Error
	if err != nil {
		return nil, err
	}
	return patches, nil
}

// CreatePatch stores a newly discovered patch. patch.Version describes the
// owning version: when it has no ID the version is looked up by
// repository and version string, and created only if it does not exist.
func (d *Database) CreatePatch(ctx context.Context, patch *Patch) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().Object("patch", patch).Msg("would create patch (dry run)")
		return nil
	}

	return d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if patch.Version.ID == 0 {
			existing := Version{}
			res := tx.
				Where("repository_id = ? AND version_string = ?", patch.Version.RepositoryID, patch.Version.VersionString).
				Limit(1).
				Find(&existing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				patch.Version = existing
			} else if err := tx.Create(&patch.Version).Error; err != nil {
				return err
			}
		}

		patch.VersionID = patch.Version.ID
		return tx.Omit(clause.Associations).Create(patch).Error
	})
}

// UpdatePatch writes back every column of an existing patch.
func (d *Database) UpdatePatch(ctx context.Context, patch *Patch) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Debug().Object("patch", patch).Msg("would update patch (dry run)")
		return nil
	}

	return d.Cli.WithContext(ctx).Omit(clause.Associations).Save(patch).Error
}

// PatchIDs maps version strings of one repository to their patch ids.
// Version strings without a stored patch are absent from the result.
func (d *Database) PatchIDs(ctx context.Context, repositoryID uint, versionStrings []string) (map[string]uint, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	ids := make(map[string]uint, len(versionStrings))
	if len(versionStrings) == 0 {
		return ids, nil
	}

	versions := []Version{}
	err := d.Cli.WithContext(ctx).
		Where("repository_id = ? AND version_string IN ?", repositoryID, versionStrings).
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return ids, nil
	}

	versionStringByID := make(map[uint]string, len(versions))
	versionIDs := make([]uint, 0, len(versions))
	for _, v := range versions {
		versionStringByID[v.ID] = v.VersionString
		versionIDs = append(versionIDs, v.ID)
	}

	patches := []Patch{}
	err = d.Cli.WithContext(ctx).
		Select("id", "version_id").
		Where("repository_id = ? AND version_id IN ?", repositoryID, versionIDs).
		Find(&patches).Error
	if err != nil {
		return nil, err
	}

	for _, p := range patches {
		ids[versionStringByID[p.VersionID]] = p.ID
	}
	return ids, nil
}
