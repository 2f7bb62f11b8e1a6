package patchlist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var ErrTooLarge = errors.New("patch list too large")

// Source returns the current snapshot of a remote patch list.
type Source interface {
	Load(ctx context.Context) ([]Entry, error)
}

// NewSource picks an HTTP source for http(s) locations and a file source
// for anything else.
func NewSource(location string, timeout time.Duration) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &HTTPSource{URL: location, Client: &http.Client{Timeout: timeout}}
	}
	return FileSource(location)
}

// FileSource reads a JSON patch list from disk.
type FileSource string

func (f FileSource) Load(ctx context.Context) ([]Entry, error) {
	file, err := os.Open(string(f))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	return Decode(file)
}

// HTTPSource fetches a JSON patch list with a GET request. Bodies larger
// than MaxSize bytes are rejected, zero means no limit.
type HTTPSource struct {
	URL     string
	Client  *http.Client
	MaxSize int64
}

func (h *HTTPSource) Load(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch patch list: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not fetch patch list: unexpected status %s", resp.Status)
	}

	if h.MaxSize <= 0 {
		return Decode(resp.Body)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, h.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not fetch patch list: %w", err)
	}
	if int64(len(raw)) > h.MaxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, h.MaxSize)
	}
	return Decode(bytes.NewReader(raw))
}

// Decode reads a JSON array of entries.
func Decode(r io.Reader) ([]Entry, error) {
	entries := []Entry{}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("could not decode patch list: %w", err)
	}
	for i, e := range entries {
		if e.Version == "" || e.URL == "" {
			return nil, fmt.Errorf("patch list entry %d must have a version and an url", i)
		}
	}
	return entries, nil
}
