package database

import (
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository is reference data, seeded out of band.
type Repository struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"not null;uniqueIndex" json:"slug"`
	Description string `json:"description"`
}

func (r Repository) MarshalZerologObject(e *zerolog.Event) {
	e.Uint("id", r.ID)
	e.Str("name", r.Name)
	e.Str("slug", r.Slug)
}

type ExpansionRepositoryMapping struct {
	GameRepositoryID      uint `gorm:"primaryKey;autoIncrement:false"`
	ExpansionID           int  `gorm:"primaryKey;autoIncrement:false"`
	ExpansionRepositoryID uint `gorm:"not null;index"`
}

type Version struct {
	ID            uint   `gorm:"primaryKey" json:"-"`
	RepositoryID  uint   `gorm:"not null;uniqueIndex:idx_version_repository_string" json:"-"`
	SortKey       int64  `gorm:"not null;index" json:"sort_key"`
	VersionString string `gorm:"not null;uniqueIndex:idx_version_repository_string" json:"version"`
}

type Patch struct {
	ID               uint                        `gorm:"primaryKey" json:"-"`
	VersionID        uint                        `gorm:"not null;uniqueIndex:idx_patch_repository_version" json:"-"`
	Version          Version                     `gorm:"foreignKey:VersionID" json:"-"`
	RepositoryID     uint                        `gorm:"not null;uniqueIndex:idx_patch_repository_version" json:"-"`
	RemoteOriginPath string                      `gorm:"not null" json:"url"`
	Size             int64                       `json:"size"`
	HashType         *string                     `json:"hash_type,omitempty"`
	HashBlockSize    *int64                      `json:"hash_block_size,omitempty"`
	Hashes           datatypes.JSONSlice[string] `json:"hashes,omitempty"`
	FirstSeen        *time.Time                  `json:"first_seen,omitempty"`
	LastSeen         *time.Time                  `json:"last_seen,omitempty"`
	FirstOffered     *time.Time                  `json:"first_offered,omitempty"`
	LastOffered      *time.Time                  `json:"last_offered,omitempty"`
}

func (p Patch) MarshalZerologObject(e *zerolog.Event) {
	e.Uint("id", p.ID)
	e.Uint("repository", p.RepositoryID)
	if p.Version.VersionString != "" {
		e.Str("version", p.Version.VersionString)
	}
	e.Str("url", p.RemoteOriginPath)
	e.Int64("size", p.Size)
}

// PatchChain links a patch to the patch that must be applied before it.
// Roots have no PreviousPatchID.
type PatchChain struct {
	PatchID              uint      `gorm:"primaryKey;autoIncrement:false"`
	RepositoryID         uint      `gorm:"not null;index"`
	PreviousPatchID      *uint     `gorm:"index"`
	HasPrerequisitePatch bool      `gorm:"not null"`
	FirstOffered         time.Time `gorm:"not null"`
	LastOffered          time.Time `gorm:"not null"`
}

// AutoMigrate provisions the schema of every model.
func AutoMigrate(cli *gorm.DB) error {
	return cli.AutoMigrate(
		&Repository{},
		&ExpansionRepositoryMapping{},
		&Version{},
		&Patch{},
		&PatchChain{},
	)
}
