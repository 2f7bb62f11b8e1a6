// Package patchlist describes the remote patch list snapshots fed into
// reconciliation and where they are read from.
package patchlist

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Entry is one patch descriptor of a remote patch list.
type Entry struct {
	Version       string   `json:"version"`
	URL           string   `json:"url"`
	Length        int64    `json:"length"`
	HashType      string   `json:"hash_type,omitempty"`
	HashBlockSize int64    `json:"hash_block_size,omitempty"`
	Hashes        []string `json:"hashes,omitempty"`
}

func (e Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("version", e.Version)
	ev.Str("url", e.URL)
	ev.Int64("length", e.Length)
	if e.HashType != "" {
		ev.Str("hash_type", e.HashType)
		ev.Int64("hash_block_size", e.HashBlockSize)
		ev.Int("hashes", len(e.Hashes))
	}
}

// Mode tells how authoritative a patch list is.
type Mode int

const (
	// The launcher is serving the patches right now.
	Offered Mode = iota
	// The patches were observed on a patch server without confirmation
	// that they are being served.
	Scraped
)

func (m Mode) String() string {
	switch m {
	case Offered:
		return "offered"
	case Scraped:
		return "scraped"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "offered":
		return Offered, nil
	case "scraped":
		return Scraped, nil
	default:
		return 0, fmt.Errorf("unknown reconciliation mode %q", s)
	}
}

// UnmarshalText lets kong and the config decoders parse modes.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
