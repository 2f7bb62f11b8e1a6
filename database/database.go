package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/expansion"
	"gorm.io/gorm"
)

var ErrRepositoryNotFound = errors.New("repository not found")

type Database struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

func (d *Database) GetRepository(ctx context.Context, slug string) (*Repository, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	d.Logger.Debug().Str("slug", slug).Msg("get repository")

	repo := &Repository{}
	err := d.Cli.WithContext(ctx).Where(Repository{Slug: slug}).First(repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ListRepositories returns the repositories with the given ids, or all of
// them when none are given, ordered by id.
func (d *Database) ListRepositories(ctx context.Context, ids ...uint) ([]Repository, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	query := d.Cli.WithContext(ctx).Order("id")
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	repos := []Repository{}
	if err := query.Find(&repos).Error; err != nil {
		return nil, err
	}
	return repos, nil
}

// ExpansionMappings returns the expansion table rows of one game repository.
func (d *Database) ExpansionMappings(ctx context.Context, gameRepositoryID uint) ([]expansion.Mapping, error) {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	rows := []ExpansionRepositoryMapping{}
	err := d.Cli.WithContext(ctx).
		Where("game_repository_id = ?", gameRepositoryID).
		Order("expansion_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	mappings := make([]expansion.Mapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, expansion.Mapping{
			GameRepositoryID:      row.GameRepositoryID,
			ExpansionID:           row.ExpansionID,
			ExpansionRepositoryID: row.ExpansionRepositoryID,
		})
	}
	return mappings, nil
}
