package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrVersionNotFound = errors.New("version not found")

func (d *Database) FindVersions(ctx context.Context, repositoryID uint, opts ...FindVersionsOptions) ([]Version, error) {
	o := findVersionsOptions{order: FindVersionsOrderByNewest}
	for _, opt := range opts {
		opt(&o)
	}

	d.Lock.Lock()
	defer d.Lock.Unlock()

	query := d.Cli.WithContext(ctx).Where("repository_id = ?", repositoryID)
	if o.order == FindVersionsOrderByOldest {
		query = query.Order("sort_key")
	} else {
		query = query.Order("sort_key DESC")
	}
	if o.limit > 0 {
		query = query.Limit(o.limit)
	}
	if o.offset > 0 {
		query = query.Offset(o.offset)
	}

	versions := []Version{}
	if err := query.Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (d *Database) GetVersion(ctx context.Context, repositoryID uint, versionString string) (*Version, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	v := &Version{}
	err := d.Cli.WithContext(ctx).
		Where("repository_id = ? AND version_string = ?", repositoryID, versionString).
		First(v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionString)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// FindVersionPatches returns the patches of the given versions.
func (d *Database) FindVersionPatches(ctx context.Context, versionIDs []uint) ([]Patch, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	patches := []Patch{}
	if len(versionIDs) == 0 {
		return patches, nil
	}

	err := d.Cli.WithContext(ctx).
		Preload("Version").
		Where("version_id IN ?", versionIDs).
		Order("id").
		Find(&patches).Error
	if err != nil {
		return nil, err
	}
	return patches, nil
}

// GetPatch returns a patch by id with its version loaded.
func (d *Database) GetPatch(ctx context.Context, id uint) (*Patch, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	p := &Patch{}
	err := d.Cli.WithContext(ctx).Preload("Version").First(p, id).Error
	if err != nil {
		return nil, err
	}
	return p, nil
}
