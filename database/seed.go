package database

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed seed.yaml
var defaultSeed []byte

type SeedData struct {
	Repositories []SeedRepository `yaml:"repositories"`
	Mappings     []SeedMapping    `yaml:"expansion_mappings"`
}

type SeedRepository struct {
	ID          uint   `yaml:"id"`
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type SeedMapping struct {
	GameRepositoryID      uint `yaml:"game_repository_id"`
	ExpansionID           int  `yaml:"expansion_id"`
	ExpansionRepositoryID uint `yaml:"expansion_repository_id"`
}

// DefaultSeed returns the built in repository catalogue.
func DefaultSeed() (*SeedData, error) {
	return decodeSeed(defaultSeed)
}

// LoadSeedFile reads a seed document. JSON documents are accepted too.
func LoadSeedFile(path string) (*SeedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return decodeSeed(raw)
}

func decodeSeed(raw []byte) (*SeedData, error) {
	seed := &SeedData{}
	if err := yaml.Unmarshal(raw, seed); err != nil {
		return nil, fmt.Errorf("could not decode seed data: %w", err)
	}
	for _, r := range seed.Repositories {
		if r.ID == 0 || r.Slug == "" {
			return nil, fmt.Errorf("seed repository %q must have an id and a slug", r.Name)
		}
	}
	return seed, nil
}

// Seed inserts repositories and expansion mappings, leaving rows that
// already exist untouched.
func (d *Database) Seed(ctx context.Context, seed *SeedData) error {
	d.Lock.Lock()
	defer d.Lock.Unlock()

	if d.DryRun {
		d.Logger.Info().
			Int("repositories", len(seed.Repositories)).
			Int("mappings", len(seed.Mappings)).
			Msg("would seed database (dry run)")
		return nil
	}

	return d.Cli.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range seed.Repositories {
			repo := Repository{ID: r.ID, Name: r.Name, Slug: r.Slug, Description: r.Description}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&repo).Error; err != nil {
				return fmt.Errorf("could not seed repository %s: %w", r.Slug, err)
			}
		}
		for _, m := range seed.Mappings {
			mapping := ExpansionRepositoryMapping{
				GameRepositoryID:      m.GameRepositoryID,
				ExpansionID:           m.ExpansionID,
				ExpansionRepositoryID: m.ExpansionRepositoryID,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mapping).Error; err != nil {
				return fmt.Errorf("could not seed expansion mapping %d/%d: %w", m.GameRepositoryID, m.ExpansionID, err)
			}
		}
		d.Logger.Info().
			Int("repositories", len(seed.Repositories)).
			Int("mappings", len(seed.Mappings)).
			Msg("database seeded")
		return nil
	})
}
