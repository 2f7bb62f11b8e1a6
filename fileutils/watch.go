package fileutils

import (
	"context"
	"time"
)

// WatchFile polls path every interval and signals on the returned channel
// when its content changed. The channel is closed once ctx is done.
// Read errors are reported to onErr and the previous content is kept as
// reference, so a file being rewritten does not trigger twice.
func WatchFile(ctx context.Context, path string, interval time.Duration, onErr func(err error)) (<-chan struct{}, error) {
	lastDigest, err := FileDigest(path)
	if err != nil {
		return nil, err
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				digest, err := FileDigest(path)
				if err != nil {
					onErr(err)
					continue
				}
				if digest == lastDigest {
					continue
				}
				lastDigest = digest

				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
