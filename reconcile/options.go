package reconcile

import (
	"time"

	"github.com/stupid-simple/patchwatch/database"
)

type options struct {
	notifier     Notifier
	now          func() time.Time
	onDiscovered func(database.Patch)
}

type Option func(o *options)

// Hand alertable patches of every pass to notifier.
func WithNotifier(notifier Notifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// Use a different clock for the pass timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Call fn for every newly stored patch, after it has been committed.
func WithDiscoveredFunc(fn func(database.Patch)) Option {
	return func(o *options) {
		o.onDiscovered = fn
	}
}
