// Package notify turns newly relevant patches into alerts and delivers
// them to the configured sinks.
package notify

import (
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"github.com/stupid-simple/patchwatch/patchlist"
)

// Patch is what an alert is built from.
type Patch struct {
	RepositoryName string
	RepositorySlug string
	Version        string
	URL            string
	Size           int64
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Color returns the embed color used by chat webhooks.
func (s Severity) Color() int {
	switch s {
	case SeverityInfo:
		return 0x2ecc71
	case SeverityWarning:
		return 0xe67e22
	default:
		return 0
	}
}

type Alert struct {
	Title          string
	Severity       Severity
	Mode           patchlist.Mode
	RepositoryName string
	RepositorySlug string
	Version        string
	URL            string
	Size           string
	DetailsURL     string
	Timestamp      time.Time
}

// Repository renders the repository as "name (slug)".
func (a Alert) Repository() string {
	return a.RepositoryName + " (" + a.RepositorySlug + ")"
}

func (a Alert) MarshalZerologObject(e *zerolog.Event) {
	e.Str("title", a.Title)
	e.Str("severity", string(a.Severity))
	e.Str("repository", a.Repository())
	e.Str("version", a.Version)
	e.Str("url", a.URL)
	e.Str("size", a.Size)
	if a.DetailsURL != "" {
		e.Str("details", a.DetailsURL)
	}
}

func titleAndSeverity(mode patchlist.Mode) (string, Severity) {
	switch mode {
	case patchlist.Scraped:
		return "New FFXIV patch seen on patch server", SeverityWarning
	default:
		return "New FFXIV patch offered by launcher", SeverityInfo
	}
}

// BuildAlerts describes every patch of a batch, in order. baseURL is the
// root of the read API; no deep link is added when it is empty.
func BuildAlerts(patches []Patch, mode patchlist.Mode, baseURL string, now time.Time) []Alert {
	title, severity := titleAndSeverity(mode)

	alerts := make([]Alert, 0, len(patches))
	for _, p := range patches {
		alerts = append(alerts, Alert{
			Title:          title,
			Severity:       severity,
			Mode:           mode,
			RepositoryName: p.RepositoryName,
			RepositorySlug: p.RepositorySlug,
			Version:        p.Version,
			URL:            p.URL,
			Size:           FormatSize(p.Size),
			DetailsURL:     DetailsURL(baseURL, p.RepositorySlug, p.Version),
			Timestamp:      now,
		})
	}
	return alerts
}

// DetailsURL returns {baseURL}/versions/{slug}/{version}.
func DetailsURL(baseURL, slug, version string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/versions/" + url.PathEscape(slug) + "/" + url.PathEscape(version)
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with binary prefixes and at most two
// decimals: 1536 is "1.5 KB", 1073741824 is "1 GB".
func FormatSize(size int64) string {
	s := units.CustomSize("%.2f %s", float64(size), 1024.0, sizeUnits)

	number, unit, ok := strings.Cut(s, " ")
	if !ok {
		return s
	}
	if strings.Contains(number, ".") {
		number = strings.TrimRight(number, "0")
		number = strings.TrimSuffix(number, ".")
	}
	return number + " " + unit
}
