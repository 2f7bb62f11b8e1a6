package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/patchwatch/notify"
	"github.com/stupid-simple/patchwatch/patchlist"
)

func TestFormatSize(t *testing.T) {
	testCases := []struct {
		size     int64
		expected string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1500, "1.46 KB"},
		{1048576, "1 MB"},
		{1073741824, "1 GB"},
		{5 * 1073741824 / 4, "1.25 GB"},
		{1099511627776, "1 TB"},
		{1099511627776 * 2048, "2048 TB"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, notify.FormatSize(tc.size))
		})
	}
}

func TestDetailsURL(t *testing.T) {
	assert.Equal(t,
		"https://thaliak.xiv.dev/api/versions/4e9a232b/2023.09.26.0000.0000",
		notify.DetailsURL("https://thaliak.xiv.dev/api/", "4e9a232b", "2023.09.26.0000.0000"))
	assert.Empty(t, notify.DetailsURL("", "4e9a232b", "2023.09.26.0000.0000"))
}

func TestBuildAlerts(t *testing.T) {
	now := time.Date(2023, 9, 26, 8, 0, 0, 0, time.UTC)
	patches := []notify.Patch{
		{
			RepositoryName: "ffxivneo/win32/release/game",
			RepositorySlug: "4e9a232b",
			Version:        "2023.09.26.0000.0000",
			URL:            "http://patch-dl.ffxiv.com/game/4e9a232b/D2023.09.26.0000.0000.patch",
			Size:           1536,
		},
		{
			RepositoryName: "ffxivneo/win32/release/ex1",
			RepositorySlug: "6b936f08",
			Version:        "2023.09.27.0000.0000",
			URL:            "http://patch-dl.ffxiv.com/game/ex1/6b936f08/D2023.09.27.0000.0000.patch",
			Size:           1073741824,
		},
	}

	offered := notify.BuildAlerts(patches, patchlist.Offered, "https://thaliak.xiv.dev/api", now)
	require.Len(t, offered, 2)
	assert.Equal(t, "New FFXIV patch offered by launcher", offered[0].Title)
	assert.Equal(t, notify.SeverityInfo, offered[0].Severity)
	assert.Equal(t, "ffxivneo/win32/release/game (4e9a232b)", offered[0].Repository())
	assert.Equal(t, "1.5 KB", offered[0].Size)
	assert.Equal(t, "https://thaliak.xiv.dev/api/versions/4e9a232b/2023.09.26.0000.0000", offered[0].DetailsURL)
	assert.Equal(t, "1 GB", offered[1].Size)
	assert.Equal(t, "6b936f08", offered[1].RepositorySlug)
	assert.Equal(t, now, offered[1].Timestamp)

	scraped := notify.BuildAlerts(patches, patchlist.Scraped, "", now)
	require.Len(t, scraped, 2)
	assert.Equal(t, "New FFXIV patch seen on patch server", scraped[0].Title)
	assert.Equal(t, notify.SeverityWarning, scraped[0].Severity)
	assert.Empty(t, scraped[0].DetailsURL)
	assert.NotEqual(t, scraped[0].Severity.Color(), offered[0].Severity.Color())
}
