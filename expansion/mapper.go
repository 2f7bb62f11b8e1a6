// Package expansion attributes patch URLs of a shared upstream feed to
// the base game or expansion repository they actually belong to.
package expansion

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var ErrUnknownMapping = errors.New("unknown expansion mapping")

type UnknownMappingError struct {
	RepositoryID uint
	ExpansionID  int
}

func (e *UnknownMappingError) Error() string {
	return fmt.Sprintf("%s: expansion %d for repository %d", ErrUnknownMapping, e.ExpansionID, e.RepositoryID)
}

func (e *UnknownMappingError) Unwrap() error {
	return ErrUnknownMapping
}

// Mapping is one row of the static expansion lookup table.
type Mapping struct {
	GameRepositoryID      uint
	ExpansionID           int
	ExpansionRepositoryID uint
}

// Patch URLs carry the expansion as a path segment, for example
// http://patch-dl.ffxiv.com/game/ex2/f29a3eb2/D2023.09.26.0000.0000.patch.
// Base game patches have no such segment.
var expansionSegment = regexp.MustCompile(`^ex([0-9]+)$`)

// ParseIndicator returns the expansion number encoded in patchURL, or 0
// for the base game.
func ParseIndicator(patchURL string) int {
	path := patchURL
	if u, err := url.Parse(patchURL); err == nil && u.Path != "" {
		path = u.Path
	}

	for _, seg := range strings.Split(path, "/") {
		m := expansionSegment.FindStringSubmatch(seg)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n
	}
	return 0
}

// EffectiveRepository returns the repository a patch URL is filed under
// when it is reported by the feed of baseRepositoryID.
func EffectiveRepository(baseRepositoryID uint, patchURL string, mappings []Mapping) (uint, error) {
	indicator := ParseIndicator(patchURL)
	if indicator == 0 {
		return baseRepositoryID, nil
	}

	for _, m := range mappings {
		if m.GameRepositoryID == baseRepositoryID && m.ExpansionID == indicator {
			return m.ExpansionRepositoryID, nil
		}
	}

	return 0, &UnknownMappingError{RepositoryID: baseRepositoryID, ExpansionID: indicator}
}

// Mapper resolves effective repositories for one base repository.
type Mapper struct {
	base       uint
	byIndex    map[int]uint
	repository []uint
}

// NewMapper keeps the mappings of base and fails if the table maps one
// expansion to more than one repository.
func NewMapper(base uint, mappings []Mapping) (*Mapper, error) {
	m := &Mapper{
		base:       base,
		byIndex:    make(map[int]uint),
		repository: []uint{base},
	}

	seen := map[uint]struct{}{base: {}}
	for _, mapping := range mappings {
		if mapping.GameRepositoryID != base {
			continue
		}
		if existing, ok := m.byIndex[mapping.ExpansionID]; ok && existing != mapping.ExpansionRepositoryID {
			return nil, fmt.Errorf("expansion %d of repository %d is mapped to both %d and %d",
				mapping.ExpansionID, base, existing, mapping.ExpansionRepositoryID)
		}
		m.byIndex[mapping.ExpansionID] = mapping.ExpansionRepositoryID

		if _, ok := seen[mapping.ExpansionRepositoryID]; !ok {
			seen[mapping.ExpansionRepositoryID] = struct{}{}
			m.repository = append(m.repository, mapping.ExpansionRepositoryID)
		}
	}

	return m, nil
}

func (m *Mapper) Base() uint {
	return m.base
}

// RepositoryIDs returns the base repository followed by every expansion
// repository reachable from it, without duplicates.
func (m *Mapper) RepositoryIDs() []uint {
	out := make([]uint, len(m.repository))
	copy(out, m.repository)
	return out
}

func (m *Mapper) EffectiveRepository(patchURL string) (uint, error) {
	indicator := ParseIndicator(patchURL)
	if indicator == 0 {
		return m.base, nil
	}

	repo, ok := m.byIndex[indicator]
	if !ok {
		return 0, &UnknownMappingError{RepositoryID: m.base, ExpansionID: indicator}
	}
	return repo, nil
}
